package main

import (
	configsqlite "schoolsync-backend/lib/configutil/sqlite"
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
	// cron expression, minute granularity
	Schedule string `json:"schedule"`
}
