package model

import "time"

// --- Configuration Structures ---

// Config is the static agent configuration, loaded once at startup from
// YAML and environment overrides. Mutable selections (restaurant id,
// chosen printer) live in the settings store instead.
type Config struct {
	WsURL        string `yaml:"ws_url"`
	WsSecret     string `yaml:"ws_secret"`
	RestaurantID string `yaml:"restaurant_id"`
	AgentName    string `yaml:"agent_name"`

	Printer PrinterConfig `yaml:"printer"`
	Receipt ReceiptConfig `yaml:"receipt"`
	Channel ChannelConfig `yaml:"channel"`
}

type PrinterConfig struct {
	// ProbePort is the raw printing port probed during discovery and
	// used for bare IP identifiers.
	ProbePort    int           `yaml:"probe_port"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	PrintTimeout time.Duration `yaml:"print_timeout"`

	// RecheckAfterTimeout makes the engine probe the device once more
	// before marking it disconnected after a print timeout.
	RecheckAfterTimeout bool `yaml:"recheck_after_timeout"`

	// NameHints are lowercase substrings that mark a spooler queue as a
	// receipt printer.
	NameHints []string `yaml:"name_hints"`
	Ports     []string `yaml:"ports"`
}

type ReceiptConfig struct {
	// Mode is "text" (ESC/POS text commands) or "html" (template
	// rendered through headless Chrome and sent as a raster image).
	Mode       string `yaml:"mode"`
	StoreName  string `yaml:"store_name"`
	LineWidth  int    `yaml:"line_width"`
	PaperWidth int    `yaml:"paper_width"`
	// Template is an html/template file for the html mode. Empty uses
	// the built-in layout.
	Template string `yaml:"template"`
}

type ChannelConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PendingAcks    int           `yaml:"pending_acks"`
}

// DefaultConfig returns the values used for anything the config file and
// environment leave unset.
func DefaultConfig() Config {
	return Config{
		WsURL:     "wss://ws.perfect-menu.it/agent",
		AgentName: "default-agent",
		Printer: PrinterConfig{
			ProbePort:    9100,
			ProbeTimeout: 300 * time.Millisecond,
			PrintTimeout: 5 * time.Second,
			NameHints:    []string{"pos", "thermal", "receipt", "tm-", "epson", "80mm", "58mm", "elgin", "bematech"},
		},
		Receipt: ReceiptConfig{
			Mode:       "text",
			StoreName:  "RESTAURANTE",
			LineWidth:  48,
			PaperWidth: 576,
		},
		Channel: ChannelConfig{
			ReconnectDelay: 5 * time.Second,
			ReadTimeout:    90 * time.Second,
			WriteTimeout:   10 * time.Second,
			PendingAcks:    256,
		},
	}
}

// Settings keys understood by the settings store.
const (
	SettingRestaurantID = "restaurantId"
	SettingPrinter      = "printerIP"
)
