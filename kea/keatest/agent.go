// Package keatest provides an in-memory Kea control agent for tests.
// Commands can be marked unsupported or overridden per test to drive the
// dispatcher's fallback tiers.
package keatest

import (
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/lovi-cloud/keagw/kea"
)

// Response is one scripted result envelope.
type Response struct {
	Result    int         `json:"result"`
	Text      string      `json:"text"`
	Arguments interface{} `json:"arguments,omitempty"`
}

// Agent is a fake control agent. The zero value is not usable; use New.
type Agent struct {
	mu          sync.Mutex
	unsupported map[string]bool
	scripted    map[string]Response
	statusCodes []int

	Version string
	Leases  []kea.Lease
	DHCP4   map[string]interface{}

	calls map[string]int
}

// New returns an agent with one empty subnet (id 1, 192.168.1.0/24).
func New() *Agent {
	return &Agent{
		unsupported: map[string]bool{},
		scripted:    map[string]Response{},
		Version:     "2.4.1",
		DHCP4: map[string]interface{}{
			"valid-lifetime": float64(4000),
			"subnet4": []interface{}{
				map[string]interface{}{
					"id":     float64(1),
					"subnet": "192.168.1.0/24",
					"pools": []interface{}{
						map[string]interface{}{"pool": "192.168.1.100 - 192.168.1.200"},
					},
					"reservations": []interface{}{},
				},
			},
		},
		calls: map[string]int{},
	}
}

// MarkUnsupported makes the given commands answer with result code 2.
func (a *Agent) MarkUnsupported(commands ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range commands {
		a.unsupported[c] = true
	}
}

// Script pins a fixed response for one command.
func (a *Agent) Script(command string, resp Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripted[command] = resp
}

// PushStatus queues an HTTP status code to answer the next request with,
// before any command handling.
func (a *Agent) PushStatus(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCodes = append(a.statusCodes, code)
}

// CallCount reports how many times a command was received.
func (a *Agent) CallCount(command string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[command]
}

// AddSubnet appends an empty subnet to the configuration.
func (a *Agent) AddSubnet(id int, prefix string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	subnets, _ := a.DHCP4["subnet4"].([]interface{})
	a.DHCP4["subnet4"] = append(subnets, map[string]interface{}{
		"id":           float64(id),
		"subnet":       prefix,
		"reservations": []interface{}{},
	})
}

// AddReservation stores a reservation directly in the configuration.
func (a *Agent) AddReservation(subnetID int, ip, mac, hostname string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	subnet := a.findSubnet(&subnetID)
	if subnet == nil {
		panic("keatest: unknown subnet")
	}
	r := map[string]interface{}{"ip-address": ip, "hw-address": mac}
	if hostname != "" {
		r["hostname"] = hostname
	}
	subnet["reservations"] = append(reservationsOf(subnet), r)
}

// Reservations returns the reservations stored for one subnet.
func (a *Agent) Reservations(subnetID int) []map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	subnet := a.findSubnet(&subnetID)
	if subnet == nil {
		return nil
	}
	out := []map[string]interface{}{}
	for _, raw := range reservationsOf(subnet) {
		if r, ok := raw.(map[string]interface{}); ok {
			out = append(out, r)
		}
	}
	return out
}

// Handler serves the control agent endpoint.
func (a *Agent) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		if len(a.statusCodes) > 0 {
			code := a.statusCodes[0]
			a.statusCodes = a.statusCodes[1:]
			w.WriteHeader(code)
			return
		}

		var env struct {
			Command   string                 `json:"command"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		a.calls[env.Command]++

		if resp, ok := a.scripted[env.Command]; ok {
			writeEnvelope(w, resp)
			return
		}
		if a.unsupported[env.Command] {
			writeEnvelope(w, Response{Result: 2, Text: "'" + env.Command + "' command not supported."})
			return
		}
		writeEnvelope(w, a.dispatch(env.Command, env.Arguments))
	})
}

func (a *Agent) dispatch(command string, args map[string]interface{}) Response {
	switch command {
	case "version-get":
		return Response{Text: "success", Arguments: map[string]interface{}{"extended": a.Version}}
	case "config-get":
		return Response{Text: "Configuration successful.", Arguments: map[string]interface{}{"Dhcp4": a.DHCP4}}
	case "config-set":
		dhcp4, ok := args["Dhcp4"].(map[string]interface{})
		if !ok {
			return Response{Result: 1, Text: "no Dhcp4 configuration supplied"}
		}
		a.DHCP4 = dhcp4
		return Response{Text: "Configuration successful."}
	case "lease4-get-all":
		return Response{Text: "leases found", Arguments: map[string]interface{}{"leases": a.Leases}}
	case "lease4-get-page":
		return a.leasePage(args)
	case "lease4-del":
		ip, _ := args["ip-address"].(string)
		for i, l := range a.Leases {
			if l.IPAddress == ip {
				a.Leases = append(a.Leases[:i:i], a.Leases[i+1:]...)
				return Response{Text: "IPv4 lease deleted."}
			}
		}
		return Response{Result: 3, Text: "IPv4 lease not found."}
	case "reservation-add":
		return a.reservationAdd(args)
	case "reservation-del":
		return a.reservationDel(args)
	default:
		return Response{Result: 2, Text: "'" + command + "' command not supported."}
	}
}

func (a *Agent) leasePage(args map[string]interface{}) Response {
	subnets, _ := args["subnets"].([]interface{})
	from, _ := args["from"].(string)
	limit := 1000
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	want := map[int]bool{}
	for _, s := range subnets {
		if id, ok := s.(float64); ok {
			want[int(id)] = true
		}
	}

	cursor := ipToUint(from)
	matched := []kea.Lease{}
	for _, l := range a.Leases {
		if !want[l.SubnetID] {
			continue
		}
		if ipToUint(l.IPAddress) <= cursor {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		return ipToUint(matched[i].IPAddress) < ipToUint(matched[j].IPAddress)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return Response{Text: "leases found", Arguments: map[string]interface{}{"leases": matched}}
}

func (a *Agent) reservationAdd(args map[string]interface{}) Response {
	payload, _ := args["reservation"].(map[string]interface{})
	if payload == nil {
		return Response{Result: 1, Text: "missing reservation"}
	}
	var subnetID *int
	if v, ok := payload["subnet-id"].(float64); ok {
		id := int(v)
		subnetID = &id
	}
	subnet := a.findSubnet(subnetID)
	if subnet == nil {
		return Response{Result: 1, Text: "subnet not found"}
	}
	ip, _ := payload["ip-address"].(string)
	mac, _ := payload["hw-address"].(string)
	for _, raw := range reservationsOf(subnet) {
		r, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if r["ip-address"] == ip || r["hw-address"] == mac {
			return Response{Result: 1, Text: "unable to add duplicate host reservation"}
		}
	}
	delete(payload, "subnet-id")
	subnet["reservations"] = append(reservationsOf(subnet), payload)
	return Response{Text: "Host added."}
}

func (a *Agent) reservationDel(args map[string]interface{}) Response {
	ip, _ := args["ip-address"].(string)
	var subnetID *int
	if v, ok := args["subnet-id"].(float64); ok {
		id := int(v)
		subnetID = &id
	}

	removed := false
	for _, raw := range a.subnets() {
		subnet, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if subnetID != nil && int(subnet["id"].(float64)) != *subnetID {
			continue
		}
		kept := []interface{}{}
		for _, rawRes := range reservationsOf(subnet) {
			if r, ok := rawRes.(map[string]interface{}); ok && r["ip-address"] == ip {
				removed = true
				continue
			}
			kept = append(kept, rawRes)
		}
		subnet["reservations"] = kept
	}
	if !removed {
		return Response{Result: 3, Text: "Host not deleted (not found)."}
	}
	return Response{Text: "Host deleted."}
}

func (a *Agent) subnets() []interface{} {
	list, _ := a.DHCP4["subnet4"].([]interface{})
	return list
}

func (a *Agent) findSubnet(subnetID *int) map[string]interface{} {
	for _, raw := range a.subnets() {
		subnet, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if subnetID == nil {
			return subnet
		}
		if id, ok := subnet["id"].(float64); ok && int(id) == *subnetID {
			return subnet
		}
	}
	return nil
}

func reservationsOf(subnet map[string]interface{}) []interface{} {
	list, _ := subnet["reservations"].([]interface{})
	return list
}

func writeEnvelope(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]Response{resp})
}

func ipToUint(s string) uint32 {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
