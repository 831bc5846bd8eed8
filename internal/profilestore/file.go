package profilestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuiperzone/implink/internal/profile"
)

// FileStore is the local JSON file backend of spec §4.3: it reads
// ClientProfile.json and RouteProfile.json from Dir on every query, so
// an operator can edit either file and have RefreshController pick it
// up on its next tick without restarting the process.
type FileStore struct {
	Dir string
}

// NewFileStore builds a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// clientWire is the on-disk shape of a ClientProfile. Secret is kept as
// a flat string ("k=v,k=v") rather than a JSON object, in the syntax
// that profile.ParseSecret parses.
type clientWire struct {
	ID                   string `json:"id"`
	Kind                 string `json:"kind"`
	BaseAddress          string `json:"baseAddress"`
	Secret               string `json:"secret"`
	UserAgent            string `json:"userAgent"`
	MaxText              int    `json:"maxText"`
	TimeoutMS            int    `json:"timeoutMs"`
	PrefixUser           bool   `json:"prefixUser"`
	DisableTLSValidation bool   `json:"disableTlsValidation"`
	Enabled              bool   `json:"enabled"`
}

// routeWire is the on-disk shape of a RouteProfile.
type routeWire struct {
	ID                 string   `json:"id"`
	IsRemoteOriginated bool     `json:"isRemoteOriginated"`
	Enabled            bool     `json:"enabled"`
	Clients            []string `json:"clients"`
	Tags               string   `json:"tags"`
	Secret             string   `json:"secret"`
	ThrottleRate       int      `json:"throttleRate"`
	Replies            bool     `json:"replies"`
}

// QueryClients reads ClientProfile.json and returns a fresh slice of
// newly-allocated ClientProfile values.
func (s *FileStore) QueryClients() ([]*profile.ClientProfile, error) {
	var wire []clientWire
	if err := readJSON(filepath.Join(s.Dir, "ClientProfile.json"), &wire); err != nil {
		return nil, err
	}

	out := make([]*profile.ClientProfile, 0, len(wire))
	for _, w := range wire {
		out = append(out, &profile.ClientProfile{
			ID:                   w.ID,
			Kind:                 profile.ParseClientKind(w.Kind),
			BaseAddress:          w.BaseAddress,
			Secret:               profile.ParseSecret(w.Secret),
			UserAgent:            w.UserAgent,
			MaxText:              w.MaxText,
			TimeoutMS:            w.TimeoutMS,
			PrefixUser:           w.PrefixUser,
			DisableTLSValidation: w.DisableTLSValidation,
			Enabled:              w.Enabled,
		})
	}
	return out, nil
}

// QueryRoutes reads RouteProfile.json and returns the subset whose
// IsRemoteOriginated flag matches remoteOriginated.
func (s *FileStore) QueryRoutes(remoteOriginated bool) ([]*profile.RouteProfile, error) {
	var wire []routeWire
	if err := readJSON(filepath.Join(s.Dir, "RouteProfile.json"), &wire); err != nil {
		return nil, err
	}

	out := make([]*profile.RouteProfile, 0, len(wire))
	for _, w := range wire {
		if w.IsRemoteOriginated != remoteOriginated {
			continue
		}
		out = append(out, &profile.RouteProfile{
			ID:                 w.ID,
			IsRemoteOriginated: w.IsRemoteOriginated,
			Enabled:            w.Enabled,
			Clients:            append([]string(nil), w.Clients...),
			Tags:               profile.ParseTagSet(w.Tags),
			Secret:             w.Secret,
			ThrottleRate:       w.ThrottleRate,
			Replies:            w.Replies,
		})
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("profilestore: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("profilestore: parsing %s: %w", path, err)
	}
	return nil
}
