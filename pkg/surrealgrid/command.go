package surrealgrid

// Command represents a discrete application operation with its specific configuration.
//
// Each command implementation carries the parameters of its operation as struct
// fields. Commands are created by [Parse] and dispatched by [Main]:
//   - [RunCommand]: HTTP server, event stream and optional demo writer
//   - [MigrateCommand]: database schema setup
//   - [SeedCommand]: creates a user, a base and a table filled with generated rows
//   - [BrowseCommand]: terminal grid browser talking to a running server
type Command interface {
	// Name returns the command identifier. It matches the CLI sub-command name.
	Name() string
}

// MigrateCommand creates or updates the schema of the configured backend.
//
// It is safe to run repeatedly: GORM's AutoMigrate only adds what is missing, and
// the SurrealDB store defines its indexes with IF NOT EXISTS. It never moves data.
//
//	surrealgrid migrate
//	surrealgrid -db surreal migrate
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// RunCommand starts the HTTP server.
//
// When DemoCron is set, a cron job inserts DemoCount generated records into
// DemoTable on that schedule, which is a convenient way to watch grids refresh
// under concurrent inserts:
//
//	surrealgrid run
//	surrealgrid -db sqlite -port 8090 run
//	surrealgrid -demo-cron "@every 10s" -demo-table <table id> -demo-count 500 run
type RunCommand struct {
	DemoCron  string
	DemoTable string
	DemoCount int
}

func (c *RunCommand) Name() string { return "run" }

// SeedCommand prepares demo data: the user with Email (created if missing), a base,
// and a table holding Count generated records.
//
//	surrealgrid -email demo@example.com -count 5000 seed
type SeedCommand struct {
	Email string
	Table string
	Count int
}

func (c *SeedCommand) Name() string { return "seed" }

// BrowseCommand opens the terminal browser against Server, signed in as Email.
// Table preselects a table; otherwise the browser asks for a base and a table.
//
//	surrealgrid -server http://localhost:8080 -email demo@example.com browse
type BrowseCommand struct {
	Server string
	Email  string
	Table  string
}

func (c *BrowseCommand) Name() string { return "browse" }
