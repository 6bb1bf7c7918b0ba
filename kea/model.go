package kea

// Lease states reported by Kea. A valid lease is in the default state,
// a declined address is unusable until reclaimed, and an expired-reclaimed
// lease is kept around so a returning client can get the same address.
const (
	LeaseStateDefault          = 0
	LeaseStateDeclined         = 1
	LeaseStateExpiredReclaimed = 2
)

// Lease is a DHCPv4 lease as reported by the lease4-get-* commands.
type Lease struct {
	IPAddress     string `json:"ip-address"`
	HWAddress     string `json:"hw-address"`
	Hostname      string `json:"hostname"`
	ClientID      string `json:"client-id,omitempty"`
	SubnetID      int    `json:"subnet-id"`
	State         int    `json:"state"`
	ValidLifetime int    `json:"valid-lft,omitempty"`
	CLTT          int64  `json:"cltt,omitempty"`
}

// OptionData is a DHCP option override carried by a reservation or subnet.
type OptionData struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// Reservation is a durable IP-to-MAC binding stored in the server's subnet
// configuration.
type Reservation struct {
	IPAddress  string       `json:"ip-address"`
	HWAddress  string       `json:"hw-address"`
	Hostname   string       `json:"hostname,omitempty"`
	SubnetID   int          `json:"subnet-id,omitempty"`
	Subnet     string       `json:"subnet,omitempty"`
	OptionData []OptionData `json:"option-data,omitempty"`
}

// Pool is an address pool inside a subnet.
type Pool struct {
	Pool string `json:"pool"`
}

// Subnet is a DHCPv4 subnet as embedded in the server configuration.
type Subnet struct {
	ID           int           `json:"id"`
	Subnet       string        `json:"subnet"`
	Pools        []Pool        `json:"pools,omitempty"`
	Reservations []Reservation `json:"reservations,omitempty"`
	OptionData   []OptionData  `json:"option-data,omitempty"`
}

// LeaseDatabase describes the configured lease storage backend.
type LeaseDatabase struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// HookLibrary is one entry of the hooks-libraries configuration list.
type HookLibrary struct {
	Library string `json:"library"`
}

// DHCP4Config is the read-side view of the Dhcp4 portion of the server
// configuration. Write paths that round trip the configuration operate on
// the raw document instead so keys this gateway does not model survive a
// config-set.
type DHCP4Config struct {
	Subnet4       []Subnet       `json:"subnet4,omitempty"`
	LeaseDatabase *LeaseDatabase `json:"lease-database,omitempty"`
	HookLibraries []HookLibrary  `json:"hooks-libraries,omitempty"`
}

// ConfigDocument is the root of a config-get response.
type ConfigDocument struct {
	DHCP4 *DHCP4Config `json:"Dhcp4,omitempty"`
}
