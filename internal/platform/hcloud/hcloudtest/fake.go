// Package hcloudtest serves an in-memory subset of the Hetzner Cloud API for
// tests: networks, subnets, firewalls, SSH keys, servers and floating IPs.
// Every mutating request is recorded so tests can assert on idempotence.
package hcloudtest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/hetznercloud/hcloud-go/v2/hcloud/schema"
	"golang.org/x/crypto/ssh"

	"github.com/dimo-network/k3sform/internal/util/labels"
)

// Request is a recorded API call.
type Request struct {
	Method string
	Path   string
}

type failure struct {
	status int
	code   string
}

// API is a fake Hetzner Cloud API backed by an httptest server.
type API struct {
	server *httptest.Server

	mu          sync.Mutex
	nextID      int64
	requests    []Request
	failures    map[string]failure
	networks    map[int64]*schema.Network
	firewalls   map[int64]*schema.Firewall
	sshKeys     map[int64]*schema.SSHKey
	servers     map[int64]*schema.Server
	floatingIPs map[int64]*schema.FloatingIP
}

// New starts a fake API that is closed when the test ends.
func New(t testing.TB) *API {
	t.Helper()
	a := &API{
		nextID:      100,
		failures:    map[string]failure{},
		networks:    map[int64]*schema.Network{},
		firewalls:   map[int64]*schema.Firewall{},
		sshKeys:     map[int64]*schema.SSHKey{},
		servers:     map[int64]*schema.Server{},
		floatingIPs: map[int64]*schema.FloatingIP{},
	}
	a.server = httptest.NewServer(a.routes())
	t.Cleanup(a.server.Close)
	return a
}

// URL returns the API endpoint.
func (a *API) URL() string { return a.server.URL }

// Client returns an hcloud client talking to the fake.
func (a *API) Client() *hcloud.Client {
	return hcloud.NewClient(
		hcloud.WithToken("test-token"),
		hcloud.WithEndpoint(a.server.URL),
	)
}

// FailNext makes the next request matching "METHOD /path" fail with the
// given status and error code.
func (a *API) FailNext(method, path string, status int, code hcloud.ErrorCode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[method+" "+path] = failure{status: status, code: string(code)}
}

// Requests returns a copy of all recorded requests.
func (a *API) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.requests)
}

// Count returns how many requests used method on a path with the prefix.
func (a *API) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range a.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// Writes returns the number of POST, PUT and DELETE requests.
func (a *API) Writes() int {
	n := 0
	for _, r := range a.Requests() {
		if r.Method != http.MethodGet {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (a *API) ResetRequests() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = nil
}

// Servers returns the stored servers sorted by ID.
func (a *API) Servers() []schema.Server { return values(a, a.servers) }

// Networks returns the stored networks sorted by ID.
func (a *API) Networks() []schema.Network { return values(a, a.networks) }

// Firewalls returns the stored firewalls sorted by ID.
func (a *API) Firewalls() []schema.Firewall { return values(a, a.firewalls) }

// SSHKeys returns the stored SSH keys sorted by ID.
func (a *API) SSHKeys() []schema.SSHKey { return values(a, a.sshKeys) }

// FloatingIPs returns the stored floating IPs sorted by ID.
func (a *API) FloatingIPs() []schema.FloatingIP { return values(a, a.floatingIPs) }

func values[T any](a *API, m map[int64]*T) []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m[id])
	}
	return out
}

func (a *API) id() int64 {
	a.nextID++
	return a.nextID
}

func (a *API) action(command string) schema.Action {
	now := time.Now()
	return schema.Action{
		ID:       a.id(),
		Status:   "success",
		Command:  command,
		Progress: 100,
		Started:  now,
		Finished: &now,
	}
}

func (a *API) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /locations", a.listLocations)
	mux.HandleFunc("GET /server_types", a.listServerTypes)
	mux.HandleFunc("GET /images", a.listImages)
	mux.HandleFunc("GET /actions", a.listActions)
	mux.HandleFunc("GET /actions/{id}", a.getAction)

	mux.HandleFunc("GET /networks", a.listNetworks)
	mux.HandleFunc("GET /networks/{id}", a.getNetwork)
	mux.HandleFunc("POST /networks", a.createNetwork)
	mux.HandleFunc("POST /networks/{id}/actions/add_subnet", a.addSubnet)
	mux.HandleFunc("DELETE /networks/{id}", a.deleteNetwork)

	mux.HandleFunc("GET /firewalls", a.listFirewalls)
	mux.HandleFunc("GET /firewalls/{id}", a.getFirewall)
	mux.HandleFunc("POST /firewalls", a.createFirewall)
	mux.HandleFunc("POST /firewalls/{id}/actions/set_rules", a.setFirewallRules)
	mux.HandleFunc("POST /firewalls/{id}/actions/apply_to_resources", a.applyFirewall)
	mux.HandleFunc("POST /firewalls/{id}/actions/remove_from_resources", a.removeFirewall)
	mux.HandleFunc("DELETE /firewalls/{id}", a.deleteFirewall)

	mux.HandleFunc("GET /ssh_keys", a.listSSHKeys)
	mux.HandleFunc("GET /ssh_keys/{id}", a.getSSHKey)
	mux.HandleFunc("POST /ssh_keys", a.createSSHKey)
	mux.HandleFunc("DELETE /ssh_keys/{id}", a.deleteSSHKey)

	mux.HandleFunc("GET /servers", a.listServers)
	mux.HandleFunc("GET /servers/{id}", a.getServer)
	mux.HandleFunc("POST /servers", a.createServer)
	mux.HandleFunc("POST /servers/{id}/actions/attach_to_network", a.attachServer)
	mux.HandleFunc("DELETE /servers/{id}", a.deleteServer)

	mux.HandleFunc("GET /floating_ips", a.listFloatingIPs)
	mux.HandleFunc("GET /floating_ips/{id}", a.getFloatingIP)
	mux.HandleFunc("POST /floating_ips", a.createFloatingIP)
	mux.HandleFunc("POST /floating_ips/{id}/actions/assign", a.assignFloatingIP)
	mux.HandleFunc("DELETE /floating_ips/{id}", a.deleteFloatingIP)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.requests = append(a.requests, Request{Method: r.Method, Path: r.URL.Path})
		key := r.Method + " " + r.URL.Path
		f, fail := a.failures[key]
		if fail {
			delete(a.failures, key)
		}
		a.mu.Unlock()

		if fail {
			writeError(w, f.status, f.code, "injected failure")
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, schema.ErrorResponse{Error: schema.Error{Code: code, Message: message}})
}

func notFound(w http.ResponseWriter, kind string) {
	writeError(w, http.StatusNotFound, string(hcloud.ErrorCodeNotFound), kind+" not found")
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

// matches applies the name and label_selector query filters.
func matches(r *http.Request, name string, lbls map[string]string) bool {
	q := r.URL.Query()
	if n := q.Get("name"); n != "" && n != name {
		return false
	}
	if sel := q.Get("label_selector"); sel != "" && !labels.Matches(sel, lbls) {
		return false
	}
	return true
}

func (a *API) listLocations(w http.ResponseWriter, r *http.Request) {
	all := []schema.Location{
		{ID: 1, Name: "fsn1", NetworkZone: "eu-central"},
		{ID: 2, Name: "nbg1", NetworkZone: "eu-central"},
		{ID: 3, Name: "hel1", NetworkZone: "eu-central"},
		{ID: 4, Name: "ash", NetworkZone: "us-east"},
	}
	var out []schema.Location
	for _, l := range all {
		if matches(r, l.Name, nil) {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, schema.LocationListResponse{Locations: out})
}

func (a *API) listServerTypes(w http.ResponseWriter, r *http.Request) {
	all := []schema.ServerType{
		{ID: 1, Name: "cx22", Architecture: "x86"},
		{ID: 2, Name: "cax11", Architecture: "arm"},
	}
	var out []schema.ServerType
	for _, st := range all {
		if matches(r, st.Name, nil) {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, schema.ServerTypeListResponse{ServerTypes: out})
}

func (a *API) listImages(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	arch := r.URL.Query().Get("architecture")
	if arch == "" {
		arch = "x86"
	}
	var out []schema.Image
	if name == "debian-12" || name == "ubuntu-24.04" {
		out = append(out, schema.Image{ID: 10, Name: &name, Type: "system", Status: "available", Architecture: arch})
	}
	writeJSON(w, http.StatusOK, schema.ImageListResponse{Images: out})
}

func (a *API) listActions(w http.ResponseWriter, r *http.Request) {
	var out []schema.Action
	for _, raw := range r.URL.Query()["id"] {
		id, _ := strconv.ParseInt(raw, 10, 64)
		out = append(out, schema.Action{ID: id, Status: "success", Progress: 100})
	}
	writeJSON(w, http.StatusOK, schema.ActionListResponse{Actions: out})
}

func (a *API) getAction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.ActionGetResponse{
		Action: schema.Action{ID: pathID(r), Status: "success", Progress: 100},
	})
}

// Networks

func (a *API) listNetworks(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []schema.Network{}
	for _, n := range sortedValues(a.networks) {
		if matches(r, n.Name, n.Labels) {
			out = append(out, *n)
		}
	}
	writeJSON(w, http.StatusOK, schema.NetworkListResponse{Networks: out})
}

func (a *API) getNetwork(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.networks[pathID(r)]
	if !ok {
		notFound(w, "network")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Network schema.Network `json:"network"`
	}{*n})
}

func (a *API) createNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string            `json:"name"`
		IPRange string            `json:"ip_range"`
		Labels  map[string]string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.networks {
		if n.Name == req.Name {
			writeError(w, http.StatusConflict, string(hcloud.ErrorCodeUniquenessError), "name is already used")
			return
		}
	}
	n := &schema.Network{ID: a.id(), Name: req.Name, IPRange: req.IPRange, Labels: req.Labels, Created: time.Now()}
	a.networks[n.ID] = n
	writeJSON(w, http.StatusCreated, schema.NetworkCreateResponse{Network: *n})
}

func (a *API) addSubnet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string `json:"type"`
		IPRange     string `json:"ip_range"`
		NetworkZone string `json:"network_zone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.networks[pathID(r)]
	if !ok {
		notFound(w, "network")
		return
	}
	_, parent, _ := net.ParseCIDR(n.IPRange)
	ip, sub, err := net.ParseCIDR(req.IPRange)
	if err != nil || parent == nil || !parent.Contains(ip) {
		writeError(w, http.StatusUnprocessableEntity, string(hcloud.ErrorCodeInvalidInput), "subnet outside network")
		return
	}
	gateway := slices.Clone(sub.IP.To4())
	gateway[3]++
	n.Subnets = append(n.Subnets, schema.NetworkSubnet{
		Type:        req.Type,
		IPRange:     sub.String(),
		NetworkZone: req.NetworkZone,
		Gateway:     net.IP(gateway).String(),
	})
	writeJSON(w, http.StatusCreated, struct {
		Action schema.Action `json:"action"`
	}{a.action("add_subnet")})
}

func (a *API) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := pathID(r)
	n, ok := a.networks[id]
	if !ok {
		notFound(w, "network")
		return
	}
	if len(n.Servers) > 0 {
		writeError(w, http.StatusConflict, string(hcloud.ErrorCodeResourceInUse), "network has attached servers")
		return
	}
	delete(a.networks, id)
	w.WriteHeader(http.StatusNoContent)
}

// Firewalls

type firewallRuleRequest struct {
	Direction      string   `json:"direction"`
	SourceIPs      []string `json:"source_ips"`
	DestinationIPs []string `json:"destination_ips"`
	Protocol       string   `json:"protocol"`
	Port           *string  `json:"port"`
	Description    *string  `json:"description"`
}

type firewallResourceRequest struct {
	Type          string `json:"type"`
	LabelSelector *struct {
		Selector string `json:"selector"`
	} `json:"label_selector"`
	Server *struct {
		ID int64 `json:"id"`
	} `json:"server"`
}

func toSchemaRules(rules []firewallRuleRequest) []schema.FirewallRule {
	out := make([]schema.FirewallRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, schema.FirewallRule{
			Direction:      r.Direction,
			SourceIPs:      r.SourceIPs,
			DestinationIPs: r.DestinationIPs,
			Protocol:       r.Protocol,
			Port:           r.Port,
			Description:    r.Description,
		})
	}
	return out
}

func toSchemaResources(res []firewallResourceRequest) []schema.FirewallResource {
	out := make([]schema.FirewallResource, 0, len(res))
	for _, r := range res {
		fr := schema.FirewallResource{Type: r.Type}
		if r.LabelSelector != nil {
			fr.LabelSelector = &schema.FirewallResourceLabelSelector{Selector: r.LabelSelector.Selector}
		}
		if r.Server != nil {
			fr.Server = &schema.FirewallResourceServer{ID: r.Server.ID}
		}
		out = append(out, fr)
	}
	return out
}

func resourceKey(r schema.FirewallResource) string {
	switch {
	case r.LabelSelector != nil:
		return r.Type + ":" + r.LabelSelector.Selector
	case r.Server != nil:
		return r.Type + ":" + strconv.FormatInt(r.Server.ID, 10)
	default:
		return r.Type
	}
}

func (a *API) listFirewalls(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []schema.Firewall{}
	for _, fw := range sortedValues(a.firewalls) {
		if matches(r, fw.Name, fw.Labels) {
			out = append(out, *fw)
		}
	}
	writeJSON(w, http.StatusOK, schema.FirewallListResponse{Firewalls: out})
}

func (a *API) getFirewall(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fw, ok := a.firewalls[pathID(r)]
	if !ok {
		notFound(w, "firewall")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Firewall schema.Firewall `json:"firewall"`
	}{*fw})
}

func (a *API) createFirewall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string                    `json:"name"`
		Labels  map[string]string         `json:"labels"`
		Rules   []firewallRuleRequest     `json:"rules"`
		ApplyTo []firewallResourceRequest `json:"apply_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	fw := &schema.Firewall{
		ID:        a.id(),
		Name:      req.Name,
		Labels:    req.Labels,
		Rules:     toSchemaRules(req.Rules),
		AppliedTo: toSchemaResources(req.ApplyTo),
		Created:   time.Now(),
	}
	a.firewalls[fw.ID] = fw
	writeJSON(w, http.StatusCreated, struct {
		Firewall schema.Firewall `json:"firewall"`
		Actions  []schema.Action `json:"actions"`
	}{*fw, []schema.Action{a.action("apply_firewall")}})
}

func (a *API) setFirewallRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules []firewallRuleRequest `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fw, ok := a.firewalls[pathID(r)]
	if !ok {
		notFound(w, "firewall")
		return
	}
	fw.Rules = toSchemaRules(req.Rules)
	writeJSON(w, http.StatusCreated, struct {
		Actions []schema.Action `json:"actions"`
	}{[]schema.Action{a.action("set_firewall_rules")}})
}

func (a *API) applyFirewall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApplyTo []firewallResourceRequest `json:"apply_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fw, ok := a.firewalls[pathID(r)]
	if !ok {
		notFound(w, "firewall")
		return
	}
	fw.AppliedTo = append(fw.AppliedTo, toSchemaResources(req.ApplyTo)...)
	writeJSON(w, http.StatusCreated, struct {
		Actions []schema.Action `json:"actions"`
	}{[]schema.Action{a.action("apply_firewall")}})
}

func (a *API) removeFirewall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RemoveFrom []firewallResourceRequest `json:"remove_from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fw, ok := a.firewalls[pathID(r)]
	if !ok {
		notFound(w, "firewall")
		return
	}
	remove := map[string]bool{}
	for _, res := range toSchemaResources(req.RemoveFrom) {
		remove[resourceKey(res)] = true
	}
	fw.AppliedTo = slices.DeleteFunc(fw.AppliedTo, func(res schema.FirewallResource) bool {
		return remove[resourceKey(res)]
	})
	writeJSON(w, http.StatusCreated, struct {
		Actions []schema.Action `json:"actions"`
	}{[]schema.Action{a.action("remove_firewall")}})
}

func (a *API) deleteFirewall(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := pathID(r)
	fw, ok := a.firewalls[id]
	if !ok {
		notFound(w, "firewall")
		return
	}
	if len(fw.AppliedTo) > 0 {
		writeError(w, http.StatusConflict, string(hcloud.ErrorCodeResourceInUse), "firewall still applied")
		return
	}
	delete(a.firewalls, id)
	w.WriteHeader(http.StatusNoContent)
}

// SSH keys

func (a *API) listSSHKeys(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("fingerprint")
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []schema.SSHKey{}
	for _, k := range sortedValues(a.sshKeys) {
		if fp != "" && k.Fingerprint != fp {
			continue
		}
		if matches(r, k.Name, k.Labels) {
			out = append(out, *k)
		}
	}
	writeJSON(w, http.StatusOK, schema.SSHKeyListResponse{SSHKeys: out})
}

func (a *API) getSSHKey(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.sshKeys[pathID(r)]
	if !ok {
		notFound(w, "ssh key")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SSHKey schema.SSHKey `json:"ssh_key"`
	}{*k})
}

func (a *API) createSSHKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string            `json:"name"`
		PublicKey string            `json:"public_key"`
		Labels    map[string]string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(req.PublicKey))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), "invalid public key")
		return
	}
	fp := ssh.FingerprintLegacyMD5(pub)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range a.sshKeys {
		if k.Name == req.Name || k.Fingerprint == fp {
			writeError(w, http.StatusConflict, string(hcloud.ErrorCodeUniquenessError), "SSH key not unique")
			return
		}
	}
	k := &schema.SSHKey{ID: a.id(), Name: req.Name, PublicKey: req.PublicKey, Fingerprint: fp, Labels: req.Labels, Created: time.Now()}
	a.sshKeys[k.ID] = k
	writeJSON(w, http.StatusCreated, schema.SSHKeyCreateResponse{SSHKey: *k})
}

func (a *API) deleteSSHKey(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := pathID(r)
	if _, ok := a.sshKeys[id]; !ok {
		notFound(w, "ssh key")
		return
	}
	delete(a.sshKeys, id)
	w.WriteHeader(http.StatusNoContent)
}

// Servers

func (a *API) listServers(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []schema.Server{}
	for _, s := range sortedValues(a.servers) {
		if matches(r, s.Name, s.Labels) {
			out = append(out, *s)
		}
	}
	writeJSON(w, http.StatusOK, schema.ServerListResponse{Servers: out})
}

func (a *API) getServer(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.servers[pathID(r)]
	if !ok {
		notFound(w, "server")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Server schema.Server `json:"server"`
	}{*s})
}

// attach assigns the next free address of the network's first subnet.
func (a *API) attach(s *schema.Server, networkID int64) error {
	n, ok := a.networks[networkID]
	if !ok {
		return fmt.Errorf("network %d not found", networkID)
	}
	if len(n.Subnets) == 0 {
		return fmt.Errorf("network %d has no subnet", networkID)
	}
	_, sub, err := net.ParseCIDR(n.Subnets[0].IPRange)
	if err != nil {
		return err
	}
	ip := slices.Clone(sub.IP.To4())
	ip[3] += byte(2 + len(n.Servers))
	s.PrivateNet = append(s.PrivateNet, schema.ServerPrivateNet{Network: networkID, IP: net.IP(ip).String()})
	n.Servers = append(n.Servers, s.ID)
	return nil
}

func (a *API) createServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string            `json:"name"`
		Labels   map[string]string `json:"labels"`
		UserData string            `json:"user_data"`
		Networks []int64           `json:"networks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.servers {
		if s.Name == req.Name {
			writeError(w, http.StatusConflict, string(hcloud.ErrorCodeUniquenessError), "server name is already used")
			return
		}
	}
	id := a.id()
	s := &schema.Server{
		ID:      id,
		Name:    req.Name,
		Status:  "running",
		Labels:  req.Labels,
		Created: time.Now(),
		PublicNet: schema.ServerPublicNet{
			IPv4: schema.ServerPublicNetIPv4{IP: fmt.Sprintf("203.0.113.%d", 10+len(a.servers))},
		},
		ServerType: schema.ServerType{ID: 1, Name: "cx22", Architecture: "x86"},
	}
	for _, nid := range req.Networks {
		if err := a.attach(s, nid); err != nil {
			writeError(w, http.StatusUnprocessableEntity, string(hcloud.ErrorCodeInvalidInput), err.Error())
			return
		}
	}
	a.servers[id] = s
	writeJSON(w, http.StatusCreated, struct {
		Server      schema.Server   `json:"server"`
		Action      schema.Action   `json:"action"`
		NextActions []schema.Action `json:"next_actions"`
	}{*s, a.action("create_server"), []schema.Action{a.action("start_server")}})
}

func (a *API) attachServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Network int64 `json:"network"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.servers[pathID(r)]
	if !ok {
		notFound(w, "server")
		return
	}
	if err := a.attach(s, req.Network); err != nil {
		writeError(w, http.StatusUnprocessableEntity, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Action schema.Action `json:"action"`
	}{a.action("attach_to_network")})
}

func (a *API) deleteServer(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := pathID(r)
	s, ok := a.servers[id]
	if !ok {
		notFound(w, "server")
		return
	}
	for _, pn := range s.PrivateNet {
		if n, ok := a.networks[pn.Network]; ok {
			n.Servers = slices.DeleteFunc(n.Servers, func(sid int64) bool { return sid == id })
		}
	}
	for _, fip := range a.floatingIPs {
		if fip.Server != nil && *fip.Server == id {
			fip.Server = nil
		}
	}
	delete(a.servers, id)
	writeJSON(w, http.StatusOK, struct {
		Action schema.Action `json:"action"`
	}{a.action("delete_server")})
}

// Floating IPs

func (a *API) listFloatingIPs(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []schema.FloatingIP{}
	for _, f := range sortedValues(a.floatingIPs) {
		if matches(r, f.Name, f.Labels) {
			out = append(out, *f)
		}
	}
	writeJSON(w, http.StatusOK, schema.FloatingIPListResponse{FloatingIPs: out})
}

func (a *API) getFloatingIP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.floatingIPs[pathID(r)]
	if !ok {
		notFound(w, "floating ip")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		FloatingIP schema.FloatingIP `json:"floating_ip"`
	}{*f})
}

func (a *API) createFloatingIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         *string           `json:"name"`
		Type         string            `json:"type"`
		HomeLocation *string           `json:"home_location"`
		Labels       map[string]string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	f := &schema.FloatingIP{
		ID:      a.id(),
		Type:    req.Type,
		IP:      fmt.Sprintf("198.51.100.%d", 10+len(a.floatingIPs)),
		Labels:  req.Labels,
		Created: time.Now(),
	}
	if req.Name != nil {
		f.Name = *req.Name
	}
	if req.HomeLocation != nil {
		f.HomeLocation = schema.Location{ID: 1, Name: *req.HomeLocation}
	}
	a.floatingIPs[f.ID] = f
	action := a.action("create_floating_ip")
	writeJSON(w, http.StatusCreated, struct {
		FloatingIP schema.FloatingIP `json:"floating_ip"`
		Action     *schema.Action    `json:"action"`
	}{*f, &action})
}

func (a *API) assignFloatingIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Server int64 `json:"server"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(hcloud.ErrorCodeInvalidInput), err.Error())
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.floatingIPs[pathID(r)]
	if !ok {
		notFound(w, "floating ip")
		return
	}
	if _, ok := a.servers[req.Server]; !ok {
		notFound(w, "server")
		return
	}
	sid := req.Server
	f.Server = &sid
	writeJSON(w, http.StatusCreated, struct {
		Action schema.Action `json:"action"`
	}{a.action("assign_floating_ip")})
}

func (a *API) deleteFloatingIP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := pathID(r)
	if _, ok := a.floatingIPs[id]; !ok {
		notFound(w, "floating ip")
		return
	}
	delete(a.floatingIPs, id)
	w.WriteHeader(http.StatusNoContent)
}

func sortedValues[T any](m map[int64]*T) []*T {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
