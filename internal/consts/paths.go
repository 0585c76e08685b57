package consts

import (
	"os"
	"path/filepath"
)

const (
	AppDirName     = ".wappflow"
	ConfigFileName = "config.yaml"
	DBFileName     = "scheduler.db"
)

func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, AppDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), ConfigFileName)
}

func DefaultDBPath() string {
	return filepath.Join(HomeDir(), DBFileName)
}
