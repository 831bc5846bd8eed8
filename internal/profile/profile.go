// Package profile defines the router's data model: ClientProfile,
// RouteProfile, NativeMessage and NativeResponse, per spec §3.
package profile

import (
	"fmt"
	"net/url"
	"strings"
)

// ClientKind is the variant tag of a ClientProfile.
type ClientKind int

const (
	KindNone ClientKind = iota
	KindImpV1
	KindTwitter
	KindFacebook
	KindStub
)

func (k ClientKind) String() string {
	switch k {
	case KindImpV1:
		return "ImpV1"
	case KindTwitter:
		return "Twitter"
	case KindFacebook:
		return "Facebook"
	case KindStub:
		return "Stub"
	default:
		return "None"
	}
}

// ParseClientKind parses the case-sensitive wire names used in profile
// JSON documents.
func ParseClientKind(s string) ClientKind {
	switch s {
	case "ImpV1":
		return KindImpV1
	case "Twitter":
		return KindTwitter
	case "Facebook":
		return KindFacebook
	case "Stub":
		return KindStub
	default:
		return KindNone
	}
}

// ClientProfile describes one outbound endpoint. See spec §3.
type ClientProfile struct {
	ID                   string
	Kind                 ClientKind
	BaseAddress          string
	Secret               map[string]string
	UserAgent            string
	MaxText              int
	TimeoutMS            int
	PrefixUser           bool
	DisableTLSValidation bool
	Enabled              bool
}

// ParseSecret turns a "k=v,k=v" string into a map. Malformed entries
// (no "=") are dropped.
func ParseSecret(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// Validate checks the invariants of spec §3.
func (p *ClientProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("client profile: id is required")
	}
	if p.Kind == KindNone {
		return fmt.Errorf("client profile %s: kind must not be None", p.ID)
	}
	u, err := url.Parse(p.BaseAddress)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("client profile %s: baseAddress is malformed", p.ID)
	}
	if p.TimeoutMS < 1 {
		return fmt.Errorf("client profile %s: timeout must be >= 1ms", p.ID)
	}
	return nil
}

// FieldsEqual is the upsert-identity comparison used by the client
// registry (Testable Property 3).
func (p *ClientProfile) FieldsEqual(o *ClientProfile) bool {
	if p == nil || o == nil {
		return p == o
	}
	if !strings.EqualFold(p.ID, o.ID) {
		return false
	}
	if p.Kind != o.Kind || p.BaseAddress != o.BaseAddress ||
		p.UserAgent != o.UserAgent || p.MaxText != o.MaxText ||
		p.TimeoutMS != o.TimeoutMS || p.PrefixUser != o.PrefixUser ||
		p.DisableTLSValidation != o.DisableTLSValidation ||
		p.Enabled != o.Enabled {
		return false
	}
	if len(p.Secret) != len(o.Secret) {
		return false
	}
	for k, v := range p.Secret {
		if o.Secret[k] != v {
			return false
		}
	}
	return true
}

// Key returns the case-insensitive registry key for this profile.
func (p *ClientProfile) Key() string { return strings.ToLower(p.ID) }

// RouteProfile describes a routing rule. See spec §3.
type RouteProfile struct {
	ID                 string
	IsRemoteOriginated bool
	Enabled            bool
	Clients            []string
	Tags               map[string]struct{}
	Secret             string
	ThrottleRate       int
	Replies            bool
}

// ParseCommaList splits and trims a comma-separated list, dropping
// empty entries.
func ParseCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseTagSet builds the set form of a comma-separated tag list.
func ParseTagSet(s string) map[string]struct{} {
	list := ParseCommaList(s)
	if len(list) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(list))
	for _, t := range list {
		set[t] = struct{}{}
	}
	return set
}

// Validate checks the invariants of spec §3. It never fails on
// unresolved client names — callers must warn separately.
func (r *RouteProfile) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("route profile: id is required")
	}
	if len(r.Clients) == 0 {
		return fmt.Errorf("route profile %s: at least one client must be listed", r.ID)
	}
	hasSecret := strings.TrimSpace(r.Secret) != ""
	if r.IsRemoteOriginated && !hasSecret {
		return fmt.Errorf("route profile %s: secret is required on remote-originated routes", r.ID)
	}
	if !r.IsRemoteOriginated && hasSecret {
		return fmt.Errorf("route profile %s: secret is forbidden on remote-terminated routes", r.ID)
	}
	return nil
}

// FieldsEqual is the upsert-identity comparison used by the router
// registry.
func (r *RouteProfile) FieldsEqual(o *RouteProfile) bool {
	if r == nil || o == nil {
		return r == o
	}
	if !strings.EqualFold(r.ID, o.ID) {
		return false
	}
	if r.IsRemoteOriginated != o.IsRemoteOriginated || r.Enabled != o.Enabled ||
		r.Secret != o.Secret || r.ThrottleRate != o.ThrottleRate || r.Replies != o.Replies {
		return false
	}
	if len(r.Clients) != len(o.Clients) {
		return false
	}
	for i, c := range r.Clients {
		if o.Clients[i] != c {
			return false
		}
	}
	if len(r.Tags) != len(o.Tags) {
		return false
	}
	for t := range r.Tags {
		if _, ok := o.Tags[t]; !ok {
			return false
		}
	}
	return true
}

// Key returns the case-insensitive registry key for this profile.
func (r *RouteProfile) Key() string { return strings.ToLower(r.ID) }
