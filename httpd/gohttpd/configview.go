package gohttpd

import "github.com/lovi-cloud/keagw/config"

// configPayload is the JSON shape of the gateway configuration exposed at
// /api/config. The API token is deliberately absent: it is neither shown
// nor settable over the API.
type configPayload struct {
	Kea struct {
		ControlAgentURL string `json:"control_agent_url"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		DefaultSubnetID int    `json:"default_subnet_id"`
		TimeoutSeconds  int    `json:"timeout_seconds"`
	} `json:"kea"`
	App struct {
		Listen             string `json:"listen"`
		LockPath           string `json:"lock_path"`
		LockTimeoutSeconds int    `json:"lock_timeout_seconds"`
		Database           string `json:"database"`
	} `json:"app"`
	Logging struct {
		Level string `json:"level"`
	} `json:"logging"`
}

func configView(c *config.Config) *configPayload {
	var p configPayload
	p.Kea.ControlAgentURL = c.Kea.ControlAgentURL
	p.Kea.Username = c.Kea.Username
	p.Kea.Password = c.Kea.Password
	p.Kea.DefaultSubnetID = c.Kea.DefaultSubnetID
	p.Kea.TimeoutSeconds = c.Kea.TimeoutSeconds
	p.App.Listen = c.App.Listen
	p.App.LockPath = c.App.LockPath
	p.App.LockTimeoutSeconds = c.App.LockTimeoutSeconds
	p.App.Database = c.App.Database
	p.Logging.Level = c.Logging.Level
	return &p
}

func (p *configPayload) toConfig() *config.Config {
	c := config.Default()
	c.Kea.ControlAgentURL = p.Kea.ControlAgentURL
	c.Kea.Username = p.Kea.Username
	c.Kea.Password = p.Kea.Password
	if p.Kea.DefaultSubnetID != 0 {
		c.Kea.DefaultSubnetID = p.Kea.DefaultSubnetID
	}
	if p.Kea.TimeoutSeconds != 0 {
		c.Kea.TimeoutSeconds = p.Kea.TimeoutSeconds
	}
	if p.App.Listen != "" {
		c.App.Listen = p.App.Listen
	}
	if p.App.LockPath != "" {
		c.App.LockPath = p.App.LockPath
	}
	if p.App.LockTimeoutSeconds != 0 {
		c.App.LockTimeoutSeconds = p.App.LockTimeoutSeconds
	}
	if p.App.Database != "" {
		c.App.Database = p.App.Database
	}
	if p.Logging.Level != "" {
		c.Logging.Level = p.Logging.Level
	}
	return c
}
