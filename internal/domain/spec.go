package domain

// SensorSpec is the serialisable description of a sensor in a collector
// configuration file. Only the fields relevant to Type are used.
type SensorSpec struct {
	Type     string   `json:"type" yaml:"type"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// powercap
	Zone string `json:"zone,omitempty" yaml:"zone,omitempty"`

	// msr
	Core   int    `json:"core,omitempty" yaml:"core,omitempty"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// opcua
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PowerNode   string `json:"power_node,omitempty" yaml:"power_node,omitempty"`
	VoltageNode string `json:"voltage_node,omitempty" yaml:"voltage_node,omitempty"`
	CurrentNode string `json:"current_node,omitempty" yaml:"current_node,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`

	// simulated
	Power  float64 `json:"power,omitempty" yaml:"power,omitempty"`
	Jitter float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}
