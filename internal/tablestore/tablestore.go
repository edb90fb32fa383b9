// Package tablestore provisions an ephemeral Cloud Bigtable instance for a
// load-test run and gives access to its tables. The instance is created at
// construction time and deleted by Cleanup; identifiers are derived from the
// test name plus a random suffix so parallel runs cannot collide.
package tablestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigtable"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Cloud Bigtable identifier limits.
const (
	maxInstanceIDLen = 33
	minInstanceIDLen = 6
	maxTableIDLen    = 50
)

// Options tunes the provisioned instance. Zero values select defaults that
// match a throwaway load-test instance.
type Options struct {
	Zone     string // default "us-central1-b"
	NumNodes int32  // default 10; ingestion tests need headroom
}

func (o *Options) withDefaults() Options {
	out := Options{Zone: "us-central1-b", NumNodes: 10}
	if o != nil {
		if o.Zone != "" {
			out.Zone = o.Zone
		}
		if o.NumNodes > 0 {
			out.NumNodes = o.NumNodes
		}
	}
	return out
}

// Manager owns one Bigtable instance for the duration of a run.
type Manager struct {
	project    string
	instanceID string

	instanceAdmin *bigtable.InstanceAdminClient
	tableAdmin    *bigtable.AdminClient
	data          *bigtable.Client
	logger        *slog.Logger
}

// NewManager creates the run's Bigtable instance and the admin/data clients
// scoped to it. The caller must invoke Cleanup regardless of test outcome.
func NewManager(ctx context.Context, testName, project string, opts *Options, logger *slog.Logger, clientOpts ...option.ClientOption) (*Manager, error) {
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := opts.withDefaults()
	instanceID := generateInstanceID(testName)

	instanceAdmin, err := bigtable.NewInstanceAdminClient(ctx, project, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create instance admin client: %w", err)
	}
	conf := &bigtable.InstanceConf{
		InstanceId:   instanceID,
		DisplayName:  instanceID,
		ClusterId:    instanceID + "-c",
		Zone:         o.Zone,
		NumNodes:     o.NumNodes,
		StorageType:  bigtable.SSD,
		InstanceType: bigtable.PRODUCTION,
	}
	if err := instanceAdmin.CreateInstance(ctx, conf); err != nil {
		_ = instanceAdmin.Close()
		return nil, fmt.Errorf("create instance %s: %w", instanceID, err)
	}

	tableAdmin, err := bigtable.NewAdminClient(ctx, project, instanceID, clientOpts...)
	if err != nil {
		_ = instanceAdmin.DeleteInstance(ctx, instanceID)
		_ = instanceAdmin.Close()
		return nil, fmt.Errorf("create table admin client: %w", err)
	}
	data, err := bigtable.NewClient(ctx, project, instanceID, clientOpts...)
	if err != nil {
		_ = tableAdmin.Close()
		_ = instanceAdmin.DeleteInstance(ctx, instanceID)
		_ = instanceAdmin.Close()
		return nil, fmt.Errorf("create data client: %w", err)
	}

	logger = logger.With("component", "tablestore", "instance", instanceID)
	logger.Info("bigtable instance created", "zone", o.Zone, "nodes", o.NumNodes)
	return &Manager{
		project:       project,
		instanceID:    instanceID,
		instanceAdmin: instanceAdmin,
		tableAdmin:    tableAdmin,
		data:          data,
		logger:        logger,
	}, nil
}

// InstanceID returns the provisioned instance identifier.
func (m *Manager) InstanceID() string { return m.instanceID }

// CreateTable creates a table with the given column families.
func (m *Manager) CreateTable(ctx context.Context, tableID string, columnFamilies []string) error {
	if len(columnFamilies) == 0 {
		return fmt.Errorf("at least one column family is required")
	}
	if err := m.tableAdmin.CreateTable(ctx, tableID); err != nil {
		return fmt.Errorf("create table %s: %w", tableID, err)
	}
	for _, family := range columnFamilies {
		if err := m.tableAdmin.CreateColumnFamily(ctx, tableID, family); err != nil {
			return fmt.Errorf("create column family %s on %s: %w", family, tableID, err)
		}
	}
	m.logger.Info("table created", "table", tableID, "families", columnFamilies)
	return nil
}

// SampleRows reads up to limit rows from the table and returns them. A bounded
// read is enough for the non-emptiness post-condition; callers must not treat
// the sample as the full table contents.
func (m *Manager) SampleRows(ctx context.Context, tableID string, limit int64) ([]bigtable.Row, error) {
	tbl := m.data.Open(tableID)
	var rows []bigtable.Row
	err := tbl.ReadRows(ctx, bigtable.InfiniteRange(""), func(r bigtable.Row) bool {
		rows = append(rows, r)
		return true
	}, bigtable.LimitRows(limit))
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", tableID, err)
	}
	return rows, nil
}

// Cleanup deletes the instance and closes all clients. Safe to call after a
// partially failed setup path has already been unwound.
func (m *Manager) Cleanup(ctx context.Context) error {
	var errs []error
	if err := m.data.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data client: %w", err))
	}
	if err := m.tableAdmin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close table admin client: %w", err))
	}
	if err := m.instanceAdmin.DeleteInstance(ctx, m.instanceID); err != nil {
		errs = append(errs, fmt.Errorf("delete instance %s: %w", m.instanceID, err))
	} else {
		m.logger.Info("bigtable instance deleted")
	}
	if err := m.instanceAdmin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close instance admin client: %w", err))
	}
	return joinErrs(errs)
}

func joinErrs(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("cleanup: %s", strings.Join(msgs, "; "))
	}
}

// GenerateTableID derives a fresh table identifier from the test name:
// lowercase, illegal characters replaced, timestamp suffix, bounded length.
func GenerateTableID(testName string) string {
	return generateResourceID(testName, maxTableIDLen)
}

// generateInstanceID derives an instance identifier from the test name. The
// result always satisfies Bigtable's instance naming rules (6-33 chars,
// starts with a letter).
func generateInstanceID(testName string) string {
	id := generateResourceID(testName, maxInstanceIDLen)
	if id == "" || id[0] < 'a' || id[0] > 'z' {
		id = "lt-" + id
		if len(id) > maxInstanceIDLen {
			id = id[:maxInstanceIDLen]
		}
	}
	for len(id) < minInstanceIDLen {
		id += "0"
	}
	return strings.TrimRight(id[:min(len(id), maxInstanceIDLen)], "-")
}

// generateResourceID lowercases the name, replaces anything outside
// [a-z0-9-], appends a time-plus-random suffix, and truncates the name part
// so the whole identifier fits maxLen.
func generateResourceID(name string, maxLen int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	suffix := time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	base := strings.Trim(b.String(), "-")
	budget := maxLen - len(suffix) - 1
	if len(base) > budget {
		base = strings.TrimRight(base[:budget], "-")
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
