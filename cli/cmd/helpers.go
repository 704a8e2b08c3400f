package cmd

import (
	"github.com/pkg/errors"

	"github.com/labelworks/pachstore/pkg/command"
	"github.com/labelworks/pachstore/pkg/config"
	"github.com/labelworks/pachstore/pkg/storage"
)

func newEngine() (*storage.Engine, error) {
	conf, err := config.LoadConfig(command.GlobalCommandOption.ConfigPath)
	if err != nil {
		return nil, err
	}
	return storage.NewEngine(conf)
}

func loadConfig(engine *storage.Engine, id uint) (*storage.Config, error) {
	if id == 0 {
		return nil, errors.New("storage configuration id is required")
	}
	return engine.Configs.Get(id)
}
