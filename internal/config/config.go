package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration tree. It is loaded once, shared by
// reference, and immutable except for the whitelisted live-tunable fields in
// StreamsConfig and AnomalyConfig, which the control plane mutates through
// Set, SetInterval and SetEnabled. All live reads go through Live and
// AnomalySnapshot so a tick always observes a consistent copy.
type Config struct {
	mu sync.RWMutex

	Transport TransportConfig `json:"transport" yaml:"transport"`
	Control   ControlConfig   `json:"control" yaml:"control"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Topics    TopicsConfig    `json:"topics" yaml:"topics"`
	Plant     PlantConfig     `json:"plant" yaml:"plant"`
	Streams   StreamsConfig   `json:"streams" yaml:"streams"`
	Anomaly   AnomalyConfig   `json:"anomaly" yaml:"anomaly"`
}

type TransportConfig struct {
	// Type selects the sink implementation: mqtt, kafka, nats or stdout.
	Type     string            `json:"type" yaml:"type"`
	Settings map[string]string `json:"settings" yaml:"settings"`
	QoS      int               `json:"qos" yaml:"qos"`
	Retain   bool              `json:"retain" yaml:"retain"`
	// PublishRate caps outbound messages per second across all streams;
	// zero disables the limiter. PublishBurst defaults to PublishRate.
	PublishRate  float64 `json:"publishRate" yaml:"publishRate"`
	PublishBurst int     `json:"publishBurst" yaml:"publishBurst"`
}

type ControlConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	CommandTopic string `json:"commandTopic" yaml:"commandTopic"`
	StatusTopic  string `json:"statusTopic" yaml:"statusTopic"`
	QueueSize    int    `json:"queueSize" yaml:"queueSize"`
}

type MetricsConfig struct {
	IntervalSec int    `json:"intervalSec" yaml:"intervalSec"`
	Listen      string `json:"listen" yaml:"listen"`
}

// TopicsConfig drives the hierarchical topic resolver. The three category
// lists hold stream slugs; Inbound maps slugs with no physical plant location
// (logistics) to their domain segment.
type TopicsConfig struct {
	Flat      bool              `json:"flat" yaml:"flat"`
	Prefix    string            `json:"prefix" yaml:"prefix"`
	Telemetry []string          `json:"telemetry" yaml:"telemetry"`
	Events    []string          `json:"events" yaml:"events"`
	State     []string          `json:"state" yaml:"state"`
	Inbound   map[string]string `json:"inbound" yaml:"inbound"`
}

// PlantConfig declares the static site/area/line/cell hierarchy and the
// material catalogue. It is injected at supervisor construction and never
// mutated at runtime.
type PlantConfig struct {
	Enterprise string       `json:"enterprise" yaml:"enterprise"`
	Sites      []SiteConfig `json:"sites" yaml:"sites"`
	Materials  []string     `json:"materials" yaml:"materials"`
}

type SiteConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Areas []AreaConfig `json:"areas" yaml:"areas"`
}

type AreaConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Lines []LineConfig `json:"lines" yaml:"lines"`
}

type LineConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Cells []CellConfig `json:"cells" yaml:"cells"`
}

type CellConfig struct {
	Name      string   `json:"name" yaml:"name"`
	Equipment []string `json:"equipment" yaml:"equipment"`
}

// Range is a [min, max] numeric pair.
type Range [2]float64

func (r Range) Min() float64 { return r[0] }
func (r Range) Max() float64 { return r[1] }

type StreamsConfig struct {
	Equipment    EquipmentConfig    `json:"equipment" yaml:"equipment"`
	MachineState MachineStateConfig `json:"machineState" yaml:"machineState"`
	Production   ProductionConfig   `json:"production" yaml:"production"`
	Consumption  ConsumptionConfig  `json:"consumption" yaml:"consumption"`
	Batch        BatchConfig        `json:"batch" yaml:"batch"`
	SupplyChain  SupplyChainConfig  `json:"supplyChain" yaml:"supplyChain"`
	Heartbeat    HeartbeatConfig    `json:"heartbeat" yaml:"heartbeat"`
	Twin         TwinConfig         `json:"twin" yaml:"twin"`
}

type EquipmentConfig struct {
	Enabled          bool  `json:"enabled" yaml:"enabled"`
	IntervalSec      int   `json:"intervalSec" yaml:"intervalSec"`
	EnergyRange      Range `json:"energyRange" yaml:"energyRange"`
	TemperatureRange Range `json:"temperatureRange" yaml:"temperatureRange"`
	VibrationRange   Range `json:"vibrationRange" yaml:"vibrationRange"`
	CycleSecRange    Range `json:"cycleSecRange" yaml:"cycleSecRange"`
}

type MachineStateConfig struct {
	Enabled                bool     `json:"enabled" yaml:"enabled"`
	DwellSec               Range    `json:"dwellSec" yaml:"dwellSec"`
	ErrorProbability       float64  `json:"errorProbability" yaml:"errorProbability"`
	MaintenanceProbability float64  `json:"maintenanceProbability" yaml:"maintenanceProbability"`
	ErrorCodes             []string `json:"errorCodes" yaml:"errorCodes"`
}

type ProductionConfig struct {
	Enabled     bool  `json:"enabled" yaml:"enabled"`
	IntervalSec int   `json:"intervalSec" yaml:"intervalSec"`
	GoodRange   Range `json:"goodRange" yaml:"goodRange"`
	ScrapRange  Range `json:"scrapRange" yaml:"scrapRange"`
}

type ConsumptionConfig struct {
	Enabled             bool  `json:"enabled" yaml:"enabled"`
	IntervalSec         int   `json:"intervalSec" yaml:"intervalSec"`
	QuantityRange       Range `json:"quantityRange" yaml:"quantityRange"`
	SegmentsPerBatch    int   `json:"segmentsPerBatch" yaml:"segmentsPerBatch"`
	MaterialsPerSegment int   `json:"materialsPerSegment" yaml:"materialsPerSegment"`
}

type BatchConfig struct {
	Enabled  bool  `json:"enabled" yaml:"enabled"`
	DwellSec Range `json:"dwellSec" yaml:"dwellSec"`
}

type SupplyChainConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	IntervalSec      int      `json:"intervalSec" yaml:"intervalSec"`
	DelayProbability float64  `json:"delayProbability" yaml:"delayProbability"`
	Carriers         []string `json:"carriers" yaml:"carriers"`
	Origins          []string `json:"origins" yaml:"origins"`
}

type HeartbeatConfig struct {
	Enabled              bool `json:"enabled" yaml:"enabled"`
	HeartbeatIntervalSec int  `json:"heartbeatIntervalSec" yaml:"heartbeatIntervalSec"`
}

type TwinConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	IntervalSec int  `json:"intervalSec" yaml:"intervalSec"`
}

type AnomalyConfig struct {
	Enabled     bool             `json:"enabled" yaml:"enabled"`
	IntervalMin int              `json:"intervalMin" yaml:"intervalMin"`
	Topic       string           `json:"topic" yaml:"topic"`
	Scenarios   []ScenarioConfig `json:"scenarios" yaml:"scenarios"`
}

// ScenarioConfig is immutable once loaded. DurationSec == 0 marks an
// instantaneous, non-reverting scenario.
type ScenarioConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Target      string         `json:"target" yaml:"target"`
	DurationSec int            `json:"durationSec" yaml:"durationSec"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Topic       string         `json:"topic" yaml:"topic"`
	Schedule    string         `json:"schedule" yaml:"schedule"`
	Overrides   map[string]any `json:"overrides" yaml:"overrides"`
}

// Load reads a YAML (or JSON) config file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		// Try JSON if YAML fails
		file.Seek(0, 0)
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file (tried YAML and JSON): %w", err)
		}
	}

	return cfg, nil
}

// Default returns a runnable configuration with a small demo plant.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Type:     "stdout",
			Settings: map[string]string{},
			QoS:      1,
		},
		Control: ControlConfig{
			Enabled:      true,
			CommandTopic: "plantsim/control/command",
			StatusTopic:  "plantsim/control/status",
			QueueSize:    64,
		},
		Metrics: MetricsConfig{IntervalSec: 60},
		Topics: TopicsConfig{
			Telemetry: []string{"equipment", "production", "heartbeat"},
			Events:    []string{"machine-state", "material-consumption", "batch", "supply-chain"},
			State:     []string{"twin"},
			Inbound:   map[string]string{"supply-chain": "logistics"},
			Prefix:    "plantsim",
		},
		Plant: PlantConfig{
			Enterprise: "Contoso",
			Sites: []SiteConfig{
				{
					Name: "Rotterdam",
					Areas: []AreaConfig{
						{
							Name: "Packaging",
							Lines: []LineConfig{
								{
									Name: "Line 1",
									Cells: []CellConfig{
										{Name: "Filling", Equipment: []string{"EQP-1001", "EQP-1002"}},
										{Name: "Capping", Equipment: []string{"EQP-1003"}},
									},
								},
								{
									Name: "Line 2",
									Cells: []CellConfig{
										{Name: "Filling", Equipment: []string{"EQP-2001"}},
									},
								},
							},
						},
					},
				},
			},
			Materials: []string{"MAT-100", "MAT-200", "MAT-300", "MAT-400"},
		},
		Streams: StreamsConfig{
			Equipment: EquipmentConfig{
				Enabled:          true,
				IntervalSec:      5,
				EnergyRange:      Range{40, 95},
				TemperatureRange: Range{55, 80},
				VibrationRange:   Range{0.2, 2.5},
				CycleSecRange:    Range{8, 14},
			},
			MachineState: MachineStateConfig{
				Enabled:                true,
				DwellSec:               Range{10, 30},
				ErrorProbability:       0.05,
				MaintenanceProbability: 0.02,
				ErrorCodes:             []string{"E-101", "E-204", "E-330", "E-417"},
			},
			Production: ProductionConfig{
				Enabled:     true,
				IntervalSec: 10,
				GoodRange:   Range{80, 120},
				ScrapRange:  Range{0, 5},
			},
			Consumption: ConsumptionConfig{
				Enabled:             true,
				IntervalSec:         15,
				QuantityRange:       Range{5, 50},
				SegmentsPerBatch:    3,
				MaterialsPerSegment: 2,
			},
			Batch: BatchConfig{
				Enabled:  true,
				DwellSec: Range{20, 60},
			},
			SupplyChain: SupplyChainConfig{
				Enabled:          true,
				IntervalSec:      30,
				DelayProbability: 0.1,
				Carriers:         []string{"Maersk", "DHL", "DSV"},
				Origins:          []string{"Antwerp", "Hamburg", "Bilbao"},
			},
			Heartbeat: HeartbeatConfig{
				Enabled:              true,
				HeartbeatIntervalSec: 30,
			},
			Twin: TwinConfig{
				Enabled:     true,
				IntervalSec: 20,
			},
		},
		Anomaly: AnomalyConfig{
			Enabled:     true,
			IntervalMin: 15,
			Topic:       "plantsim/anomalies",
			Scenarios: []ScenarioConfig{
				{
					Name:        "energy-spike",
					Description: "Drive equipment energy draw far above its rated band",
					Target:      "equipment",
					DurationSec: 120,
					Enabled:     true,
					Overrides:   map[string]any{"energyRange": []any{300.0, 400.0}},
				},
				{
					Name:        "overheat",
					Description: "Sustained high temperature on all equipment",
					Target:      "equipment",
					DurationSec: 180,
					Enabled:     true,
					Overrides:   map[string]any{"temperatureRange": []any{110.0, 130.0}},
				},
				{
					Name:        "error-storm",
					Description: "Machines flap into error states",
					Target:      "machine-state",
					DurationSec: 90,
					Enabled:     true,
					Overrides:   map[string]any{"errorProbability": 0.8},
				},
				{
					Name:        "scrap-surge",
					Description: "Scrap counts jump on every line",
					Target:      "production",
					DurationSec: 150,
					Enabled:     true,
					Overrides:   map[string]any{"scrapRange": []any{30.0, 60.0}},
				},
				{
					Name:        "shipment-delays",
					Description: "Inbound shipments all run late",
					Target:      "supply-chain",
					DurationSec: 0,
					Enabled:     false,
					Overrides:   map[string]any{"delayProbability": 1.0},
				},
			},
		},
	}
}

// Live returns a copy of the stream sections taken under the read lock.
// Streams call this once per tick so command-plane edits and anomaly overrides
// are observed with whole-tick atomicity.
func (c *Config) Live() StreamsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Streams
}

// AnomalySnapshot returns a copy of the anomaly section.
func (c *Config) AnomalySnapshot() AnomalyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.Anomaly
	out.Scenarios = append([]ScenarioConfig(nil), c.Anomaly.Scenarios...)
	return out
}

// Validate returns human-friendly warnings for inconsistent but non-fatal
// configuration.
func (c *Config) Validate() []string {
	var warnings []string

	checkRange := func(name string, r Range) {
		if r.Max() < r.Min() {
			warnings = append(warnings, fmt.Sprintf("%s: max %v is below min %v", name, r.Max(), r.Min()))
		}
	}
	checkRange("streams.equipment.energyRange", c.Streams.Equipment.EnergyRange)
	checkRange("streams.equipment.temperatureRange", c.Streams.Equipment.TemperatureRange)
	checkRange("streams.machineState.dwellSec", c.Streams.MachineState.DwellSec)
	checkRange("streams.production.scrapRange", c.Streams.Production.ScrapRange)
	checkRange("streams.batch.dwellSec", c.Streams.Batch.DwellSec)

	if len(c.Plant.Sites) == 0 {
		warnings = append(warnings, "plant.sites is empty, every stream will fall back to flat topics")
	}
	seen := map[string]bool{}
	for _, sc := range c.Anomaly.Scenarios {
		if sc.Target == "" {
			warnings = append(warnings, fmt.Sprintf("anomaly scenario %q has no target; markers will publish but overrides are no-ops", sc.Name))
		}
		if seen[sc.Name] {
			warnings = append(warnings, fmt.Sprintf("duplicate anomaly scenario name %q", sc.Name))
		}
		seen[sc.Name] = true
	}
	if c.Control.Enabled && (c.Control.CommandTopic == "" || c.Control.StatusTopic == "") {
		warnings = append(warnings, "control is enabled but commandTopic/statusTopic are not both set")
	}
	return warnings
}
