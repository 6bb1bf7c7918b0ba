// Package gokea implements the kea.Client interface against a Kea control
// agent. Each logical operation tries its preferred native command first
// and transparently falls back to a configuration-rewrite path when the
// backend reports the command as unsupported.
package gokea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/keagw/kea"
	"github.com/lovi-cloud/keagw/reslock"
	"github.com/lovi-cloud/keagw/types"
)

// Result code 3 means the command executed but matched no resource.
const resultEmpty = 3

// Config is the connection configuration for one GoKea client.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// GoKea is
type GoKea struct {
	tr     *transport
	lock   *reslock.Lock
	logger *zap.Logger
}

// New is
func New(cfg Config, lock *reslock.Lock, logger *zap.Logger) (kea.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("control agent url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &GoKea{
		tr:     newTransport(cfg.URL, cfg.Username, cfg.Password, timeout, logger),
		lock:   lock,
		logger: logger,
	}, nil
}

// GetVersion returns the backend's extended version string.
func (g *GoKea) GetVersion(ctx context.Context) (string, error) {
	res, err := g.tr.send(ctx, "version-get", nil)
	if err != nil {
		return "", err
	}
	if res.Unsupported {
		return "", &kea.CommandError{Command: "version-get", Code: resultUnsupported, Text: res.Text}
	}
	var args struct {
		Extended string `json:"extended"`
	}
	if err := json.Unmarshal(res.Arguments, &args); err != nil || args.Extended == "" {
		return "unknown", nil
	}
	return args.Extended, nil
}

// GetLeases returns the DHCPv4 leases, optionally filtered by subnet.
// Tier 1 is the bulk lease4-get-all command; when the backend lacks it the
// lease set is paged per subnet, and when paging is unavailable too the
// caller gets a capability error naming what is missing.
func (g *GoKea) GetLeases(ctx context.Context, subnetID *int) ([]kea.Lease, error) {
	leases, err := g.getAllLeases(ctx, subnetID)
	if err != nil {
		return nil, err
	}

	out := make([]kea.Lease, 0, len(leases))
	for _, l := range leases {
		if subnetID != nil && l.SubnetID != *subnetID {
			continue
		}
		if l.HWAddress == "" {
			l.HWAddress = "unknown"
		}
		out = append(out, l)
	}
	return out, nil
}

func (g *GoKea) getAllLeases(ctx context.Context, subnetID *int) ([]kea.Lease, error) {
	res, err := g.tr.send(ctx, "lease4-get-all", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if !res.Unsupported {
		leases, err := parseLeases(res.Arguments)
		if err != nil {
			return nil, err
		}
		g.logger.Info("retrieved leases via lease4-get-all", zap.Int("count", len(leases)))
		return leases, nil
	}

	g.logger.Info("lease4-get-all not supported, paging per subnet")
	fallbacksTotal.WithLabelValues("get_leases").Inc()

	var subnetIDs []int
	if subnetID != nil {
		subnetIDs = []int{*subnetID}
	} else {
		subnets, err := g.GetSubnets(ctx)
		if err != nil {
			return nil, g.capabilityError(ctx)
		}
		for _, s := range subnets {
			subnetIDs = append(subnetIDs, s.ID)
		}
	}

	var all []kea.Lease
	for _, sid := range subnetIDs {
		leases, err := g.pageLeases(ctx, sid)
		if err != nil {
			return nil, g.capabilityError(ctx)
		}
		all = append(all, leases...)
	}
	g.logger.Info("retrieved leases via lease4-get-page", zap.Int("count", len(all)))
	return all, nil
}

// capabilityError names the missing lease_cmds hook and, best effort, the
// configured lease storage backend.
func (g *GoKea) capabilityError(ctx context.Context) error {
	backend := "unknown"
	if doc, err := g.getConfigTyped(ctx); err == nil && doc.DHCP4 != nil {
		backend = "memfile"
		if doc.DHCP4.LeaseDatabase != nil && doc.DHCP4.LeaseDatabase.Type != "" {
			backend = doc.DHCP4.LeaseDatabase.Type
		}
	}
	return &kea.CapabilityError{Capability: "lease_cmds", Backend: backend}
}

// GetReservations extracts the reservations embedded in each subnet of the
// backend configuration. This is an advisory read path: any failure is
// logged and an empty list returned.
func (g *GoKea) GetReservations(ctx context.Context, subnetID *int) ([]kea.Reservation, error) {
	doc, err := g.getConfigTyped(ctx)
	if err != nil {
		g.logger.Warn("could not fetch reservations", zap.Error(err))
		return []kea.Reservation{}, nil
	}
	if doc.DHCP4 == nil {
		return []kea.Reservation{}, nil
	}

	reservations := []kea.Reservation{}
	for _, subnet := range doc.DHCP4.Subnet4 {
		if subnetID != nil && subnet.ID != *subnetID {
			continue
		}
		for _, r := range subnet.Reservations {
			r.SubnetID = subnet.ID
			r.Subnet = subnet.Subnet
			reservations = append(reservations, r)
		}
	}
	return reservations, nil
}

// CreateReservation promotes an (ip, mac) binding to a durable reservation.
// The whole read-check-write sequence runs under the cross-process
// reservation lock so concurrent workers cannot interleave their checks.
func (g *GoKea) CreateReservation(ctx context.Context, req kea.CreateReservationRequest) (*kea.CreateReservationResult, error) {
	handle, err := g.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	// Re-read fresh state under the lock; reservation state is never
	// cached, which narrows the race window to the lock's own span.
	existing, _ := g.GetReservations(ctx, req.SubnetID)

	decision, err := evaluateConflicts(existing, req, g.logger)
	if err != nil {
		return nil, err
	}
	if decision.existing != nil {
		g.logger.Info("reservation already exists",
			zap.String("ip", req.IPAddress), zap.String("mac", req.HWAddress))
		return &kea.CreateReservationResult{Reservation: *decision.existing, Created: false}, nil
	}
	for _, victim := range decision.victims {
		sid := victim.SubnetID
		if err := g.deleteReservationLocked(ctx, victim.IPAddress, &sid); err != nil {
			return nil, fmt.Errorf("failed to remove overwritten reservation %s: %w", victim.IPAddress, err)
		}
	}

	reservation := buildReservation(req)
	if err := g.createLocked(ctx, req, reservation); err != nil {
		return nil, err
	}
	return &kea.CreateReservationResult{Reservation: reservation, Created: true}, nil
}

func buildReservation(req kea.CreateReservationRequest) kea.Reservation {
	r := kea.Reservation{
		IPAddress: req.IPAddress,
		HWAddress: req.HWAddress,
		Hostname:  req.Hostname,
	}
	if req.SubnetID != nil {
		r.SubnetID = *req.SubnetID
	}
	if len(req.DNSServers) > 0 {
		r.OptionData = []kea.OptionData{{
			Name: "domain-name-servers",
			Data: strings.Join(req.DNSServers, ", "),
		}}
	}
	return r
}

func (g *GoKea) createLocked(ctx context.Context, req kea.CreateReservationRequest, reservation kea.Reservation) error {
	payload := map[string]interface{}{
		"ip-address": reservation.IPAddress,
		"hw-address": reservation.HWAddress,
	}
	if reservation.Hostname != "" {
		payload["hostname"] = reservation.Hostname
	}
	if req.SubnetID != nil {
		payload["subnet-id"] = *req.SubnetID
	}
	if len(reservation.OptionData) > 0 {
		payload["option-data"] = reservation.OptionData
	}

	res, err := g.tr.send(ctx, "reservation-add", map[string]interface{}{"reservation": payload})
	if err != nil {
		return err
	}
	if !res.Unsupported {
		g.logger.Info("created reservation",
			zap.String("ip", reservation.IPAddress), zap.String("mac", reservation.HWAddress))
		return nil
	}

	g.logger.Warn("reservation-add not supported, using config-set fallback",
		zap.String("text", res.Text))
	fallbacksTotal.WithLabelValues("create_reservation").Inc()
	return g.createViaConfig(ctx, req, payload)
}

// createViaConfig performs a read-modify-write of the whole Dhcp4 document.
// This is not atomic on the backend side; the reservation lock protects it
// only against this gateway's own workers, not against external writers.
func (g *GoKea) createViaConfig(ctx context.Context, req kea.CreateReservationRequest, payload map[string]interface{}) error {
	dhcp4, err := g.getConfigRaw(ctx)
	if err != nil {
		return err
	}

	subnets, _ := dhcp4["subnet4"].([]interface{})
	target := findSubnet(subnets, req.SubnetID)
	if target == nil {
		key := "any"
		if req.SubnetID != nil {
			key = fmt.Sprintf("%d", *req.SubnetID)
		}
		return &kea.NotFoundError{Resource: "subnet", Key: key}
	}

	// subnet-id is a reservation-add argument, not a valid key inside
	// subnet4[].reservations; the strict config parser rejects it there.
	// The entry's subnet is determined by where it is embedded.
	entry := map[string]interface{}{}
	for k, v := range payload {
		if k == "subnet-id" {
			continue
		}
		entry[k] = v
	}

	// Drop literal duplicates first so a forced or repeated create behaves
	// as an overwrite instead of accumulating entries.
	kept := []interface{}{}
	for _, raw := range rawReservations(target) {
		r, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ip, _ := r["ip-address"].(string)
		mac, _ := r["hw-address"].(string)
		if ip == req.IPAddress || types.EqualMAC(mac, req.HWAddress) {
			continue
		}
		kept = append(kept, raw)
	}
	target["reservations"] = append(kept, entry)

	if err := g.setConfig(ctx, dhcp4); err != nil {
		return err
	}
	g.logger.Info("created reservation via config-set",
		zap.String("ip", req.IPAddress), zap.String("mac", req.HWAddress))
	return nil
}

// DeleteReservation removes the reservation bound to ipAddress, optionally
// narrowed to one subnet.
func (g *GoKea) DeleteReservation(ctx context.Context, ipAddress string, subnetID *int) error {
	handle, err := g.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	return g.deleteReservationLocked(ctx, ipAddress, subnetID)
}

func (g *GoKea) deleteReservationLocked(ctx context.Context, ipAddress string, subnetID *int) error {
	args := map[string]interface{}{"ip-address": ipAddress}
	if subnetID != nil {
		args["subnet-id"] = *subnetID
	}

	res, err := g.tr.send(ctx, "reservation-del", args)
	if err != nil {
		var cmdErr *kea.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == resultEmpty {
			return &kea.NotFoundError{Resource: "reservation", Key: ipAddress}
		}
		return err
	}
	if !res.Unsupported {
		g.logger.Info("deleted reservation", zap.String("ip", ipAddress))
		return nil
	}

	g.logger.Warn("reservation-del not supported, using config-set fallback",
		zap.String("text", res.Text))
	fallbacksTotal.WithLabelValues("delete_reservation").Inc()
	return g.deleteViaConfig(ctx, ipAddress, subnetID)
}

func (g *GoKea) deleteViaConfig(ctx context.Context, ipAddress string, subnetID *int) error {
	dhcp4, err := g.getConfigRaw(ctx)
	if err != nil {
		return err
	}

	removed := false
	subnets, _ := dhcp4["subnet4"].([]interface{})
	for _, raw := range subnets {
		subnet, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if subnetID != nil && subnetIDOf(subnet) != *subnetID {
			continue
		}
		kept := []interface{}{}
		for _, rawRes := range rawReservations(subnet) {
			r, ok := rawRes.(map[string]interface{})
			if ok {
				if ip, _ := r["ip-address"].(string); ip == ipAddress {
					removed = true
					continue
				}
			}
			kept = append(kept, rawRes)
		}
		subnet["reservations"] = kept
	}
	if !removed {
		return &kea.NotFoundError{Resource: "reservation", Key: ipAddress}
	}

	if err := g.setConfig(ctx, dhcp4); err != nil {
		return err
	}
	g.logger.Info("deleted reservation via config-set", zap.String("ip", ipAddress))
	return nil
}

// DeleteLeaseByIP removes one active lease.
func (g *GoKea) DeleteLeaseByIP(ctx context.Context, ipAddress string) error {
	res, err := g.tr.send(ctx, "lease4-del", map[string]interface{}{"ip-address": ipAddress})
	if err != nil {
		var cmdErr *kea.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == resultEmpty {
			return &kea.NotFoundError{Resource: "lease", Key: ipAddress}
		}
		return err
	}
	if res.Unsupported {
		return &kea.CapabilityError{Capability: "lease_cmds", Backend: "unknown"}
	}
	g.logger.Info("deleted lease", zap.String("ip", ipAddress))
	return nil
}

// DeleteLeasesByMAC removes every lease held by the given hardware address
// and returns the number of successful deletions. Per-lease failures are
// logged and do not abort the batch.
func (g *GoKea) DeleteLeasesByMAC(ctx context.Context, hwAddress string) (int, error) {
	leases, err := g.GetLeases(ctx, nil)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, l := range leases {
		if !types.EqualMAC(l.HWAddress, hwAddress) {
			continue
		}
		if err := g.DeleteLeaseByIP(ctx, l.IPAddress); err != nil {
			g.logger.Warn("failed to delete lease",
				zap.String("ip", l.IPAddress), zap.String("mac", hwAddress), zap.Error(err))
			continue
		}
		deleted++
	}
	g.logger.Info("deleted leases by mac",
		zap.String("mac", hwAddress), zap.Int("count", deleted))
	return deleted, nil
}

// GetSubnets returns the configured DHCPv4 subnets without their embedded
// reservations.
func (g *GoKea) GetSubnets(ctx context.Context) ([]kea.Subnet, error) {
	doc, err := g.getConfigTyped(ctx)
	if err != nil {
		return nil, err
	}
	if doc.DHCP4 == nil {
		return []kea.Subnet{}, nil
	}

	subnets := make([]kea.Subnet, 0, len(doc.DHCP4.Subnet4))
	for _, s := range doc.DHCP4.Subnet4 {
		subnets = append(subnets, kea.Subnet{
			ID:     s.ID,
			Subnet: s.Subnet,
			Pools:  s.Pools,
		})
	}
	return subnets, nil
}

// GetConfig is
func (g *GoKea) GetConfig(ctx context.Context) (json.RawMessage, error) {
	res, err := g.tr.send(ctx, "config-get", nil)
	if err != nil {
		return nil, err
	}
	if res.Unsupported {
		return nil, &kea.CommandError{Command: "config-get", Code: resultUnsupported, Text: res.Text}
	}
	return res.Arguments, nil
}

func (g *GoKea) getConfigTyped(ctx context.Context) (*kea.ConfigDocument, error) {
	raw, err := g.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	var doc kea.ConfigDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &kea.ProtocolError{Reason: "config-get arguments are not a configuration document", Body: raw}
	}
	return &doc, nil
}

// getConfigRaw returns the Dhcp4 document as a generic map so rewrite
// paths keep every key the backend sent.
func (g *GoKea) getConfigRaw(ctx context.Context) (map[string]interface{}, error) {
	raw, err := g.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &kea.ProtocolError{Reason: "config-get arguments are not a configuration document", Body: raw}
	}
	dhcp4, ok := doc["Dhcp4"].(map[string]interface{})
	if !ok {
		return nil, &kea.ProtocolError{Reason: "configuration document has no Dhcp4 section", Body: raw}
	}
	return dhcp4, nil
}

func (g *GoKea) setConfig(ctx context.Context, dhcp4 map[string]interface{}) error {
	res, err := g.tr.send(ctx, "config-set", map[string]interface{}{"Dhcp4": dhcp4})
	if err != nil {
		return err
	}
	if res.Unsupported {
		return &kea.CommandError{Command: "config-set", Code: resultUnsupported, Text: res.Text}
	}
	return nil
}

func parseLeases(arguments json.RawMessage) ([]kea.Lease, error) {
	var args struct {
		Leases []kea.Lease `json:"leases"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, &kea.ProtocolError{Reason: "lease arguments are not a lease list", Body: arguments}
	}
	return args.Leases, nil
}

func findSubnet(subnets []interface{}, subnetID *int) map[string]interface{} {
	for _, raw := range subnets {
		subnet, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if subnetID == nil || subnetIDOf(subnet) == *subnetID {
			return subnet
		}
	}
	return nil
}

func subnetIDOf(subnet map[string]interface{}) int {
	id, _ := subnet["id"].(float64)
	return int(id)
}

func rawReservations(subnet map[string]interface{}) []interface{} {
	list, _ := subnet["reservations"].([]interface{})
	return list
}
