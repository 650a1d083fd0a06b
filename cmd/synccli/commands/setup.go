package commands

import (
	"database/sql"

	"schoolsync-backend/lib/configutil"
	configsqlite "schoolsync-backend/lib/configutil/sqlite"
	"schoolsync-backend/lib/scrapers/compass"
	"schoolsync-backend/lib/serviceutil"
	"schoolsync-backend/services/ingest"
	ingestdb "schoolsync-backend/services/ingest/db"
	"schoolsync-backend/services/keychain"
	keychaindb "schoolsync-backend/services/keychain/db"
	"schoolsync-backend/services/sync"
)

type PortalConfig struct {
	BaseUrl     string `json:"base_url"`
	Mode        string `json:"mode"`
	ProfileDir  string `json:"profile_dir"`
	Headless    bool   `json:"headless"`
	MockDataDir string `json:"mock_data_dir"`
	DaysPast    int    `json:"days_past"`
	DaysFuture  int    `json:"days_future"`
	Limit       int    `json:"limit"`
}

type Config struct {
	Database configsqlite.Struct `json:"database"`
	Portal   PortalConfig        `json:"portal"`
}

type services struct {
	db       *sql.DB
	keychain keychain.Service
	store    ingest.Service
	sync     sync.Service
}

func openServices() services {
	config, err := configutil.ReadConfig[Config](*configFile)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	database, err := config.Database.OpenDB(ingestdb.Schema + "\n" + keychaindb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	keychainSvc := keychain.NewService(database)
	store := ingest.NewService(database)
	syncSvc := sync.NewService(
		sync.Options{
			BaseUrl: config.Portal.BaseUrl,
			Mode:    compass.Mode(config.Portal.Mode),
			Browser: compass.BrowserOptions{
				ProfileDir: config.Portal.ProfileDir,
				Headless:   config.Portal.Headless,
			},
			MockDataDir: config.Portal.MockDataDir,
			DaysPast:    config.Portal.DaysPast,
			DaysFuture:  config.Portal.DaysFuture,
			Limit:       config.Portal.Limit,
		},
		keychainSvc,
		store,
	)

	return services{
		db:       database,
		keychain: keychainSvc,
		store:    store,
		sync:     syncSvc,
	}
}
