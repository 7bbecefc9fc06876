package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

// Config captures the details required to open an OPC UA session to a power
// meter and the nodes that expose its readings.
type Config struct {
	Name            string        `yaml:"name"`
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`

	PowerNode   string `yaml:"power_node"`
	VoltageNode string `yaml:"voltage_node"`
	CurrentNode string `yaml:"current_node"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "wattflow"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.Name == "" {
		c.Name = "opcua/" + c.Endpoint
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: opcua endpoint is required", domain.ErrInvalidConfiguration)
	}
	if c.PowerNode == "" && (c.VoltageNode == "" || c.CurrentNode == "") {
		return fmt.Errorf("%w: opcua sensor needs power_node or both voltage_node and current_node", domain.ErrInvalidConfiguration)
	}
	return nil
}

// ConfigFromSpec maps a configuration file entry onto Config.
func ConfigFromSpec(spec domain.SensorSpec) Config {
	return Config{
		Name:        spec.Name,
		Endpoint:    spec.Endpoint,
		Username:    spec.Username,
		Password:    spec.Password,
		PowerNode:   spec.PowerNode,
		VoltageNode: spec.VoltageNode,
		CurrentNode: spec.CurrentNode,
	}
}

// reader is the part of *opcua.Client the sensor uses.
type reader interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}

type node struct {
	source domain.SourceMask
	id     *ua.NodeID
}

// Sensor reads power, voltage and current nodes of an OPC UA power meter
// with one synchronous Read per Sample. The session is opened lazily and
// reopened after a failed read.
type Sensor struct {
	cfg   Config
	nodes []node
	dial  func(ctx context.Context) (reader, error)

	mu     sync.Mutex
	client reader
	mask   domain.SourceMask
}

func NewSensor(cfg Config) (*Sensor, error) {
	s, err := newSensor(cfg)
	if err != nil {
		return nil, err
	}
	s.dial = s.connect
	return s, nil
}

func newSensor(cfg Config) (*Sensor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sensor{cfg: cfg, mask: domain.SourceAll}
	for _, n := range []struct {
		source domain.SourceMask
		raw    string
	}{
		{domain.SourcePower, cfg.PowerNode},
		{domain.SourceVoltage, cfg.VoltageNode},
		{domain.SourceCurrent, cfg.CurrentNode},
	} {
		if n.raw == "" {
			continue
		}
		id, err := ua.ParseNodeID(n.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse node id %q: %v", domain.ErrInvalidConfiguration, n.raw, err)
		}
		s.nodes = append(s.nodes, node{source: n.source, id: id})
	}
	return s, nil
}

func (s *Sensor) Name() string { return s.cfg.Name }

func (s *Sensor) SelectSources(mask domain.SourceMask) {
	s.mu.Lock()
	s.mask = mask
	s.mu.Unlock()
}

func (s *Sensor) Spec() domain.SensorSpec {
	return domain.SensorSpec{
		Type:        "opcua",
		Name:        s.cfg.Name,
		Endpoint:    s.cfg.Endpoint,
		Username:    s.cfg.Username,
		PowerNode:   s.cfg.PowerNode,
		VoltageNode: s.cfg.VoltageNode,
		CurrentNode: s.cfg.CurrentNode,
	}
}

func (s *Sensor) Sample(ctx context.Context) ([]domain.MeasurementData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	if s.client == nil {
		client, err := s.dial(ctx)
		if err != nil {
			return nil, err
		}
		s.client = client
	}

	selected := s.selectedNodes()
	req := &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead:        make([]*ua.ReadValueID, len(selected)),
	}
	for i, n := range selected {
		req.NodesToRead[i] = &ua.ReadValueID{NodeID: n.id, AttributeID: ua.AttributeIDValue}
	}

	resp, err := s.client.Read(ctx, req)
	if err != nil {
		s.resetLocked()
		return nil, fmt.Errorf("opcua read: %w", err)
	}
	if len(resp.Results) != len(selected) {
		return nil, fmt.Errorf("opcua read: expected %d results, got %d", len(selected), len(resp.Results))
	}

	var (
		d                  domain.MeasurementData
		havePower          bool
		haveVolts, haveAmp bool
	)
	for i, n := range selected {
		dv := resp.Results[i]
		if dv.Status != ua.StatusOK {
			return nil, fmt.Errorf("opcua read %s: %s", n.id, dv.Status)
		}
		v, ok := variantToFloat(dv.Value)
		if !ok {
			return nil, fmt.Errorf("opcua read %s: unsupported value type", n.id)
		}
		if d.Timestamp.IsZero() {
			d.Timestamp = dataValueTime(dv)
		}
		switch n.source {
		case domain.SourcePower:
			d.Power, havePower = v, true
		case domain.SourceVoltage:
			d.Voltage, haveVolts = v, true
		case domain.SourceCurrent:
			d.Current, haveAmp = v, true
		}
	}
	if !havePower && haveVolts && haveAmp {
		d.Power = d.Voltage * d.Current
	}
	return []domain.MeasurementData{d}, nil
}

// selectedNodes honours the source mask but always keeps what is needed to
// report power.
func (s *Sensor) selectedNodes() []node {
	out := make([]node, 0, len(s.nodes))
	hasPowerNode := s.cfg.PowerNode != ""
	for _, n := range s.nodes {
		switch {
		case s.mask.Has(n.source):
		case n.source == domain.SourcePower:
		case !hasPowerNode && s.mask.Has(domain.SourcePower):
		default:
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *Sensor) connect(ctx context.Context) (reader, error) {
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return client, nil
}

func (s *Sensor) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (s *Sensor) resetLocked() {
	if s.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
	defer cancel()
	_ = s.client.Close(ctx)
	s.client = nil
}

func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.client.Close(ctx)
	s.client = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func dataValueTime(dv *ua.DataValue) time.Time {
	ts := dv.ServerTimestamp
	if ts.IsZero() {
		ts = dv.SourceTimestamp
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var (
	_ ports.Sensor         = (*Sensor)(nil)
	_ ports.SourceSelector = (*Sensor)(nil)
	_ ports.Describer      = (*Sensor)(nil)
)
