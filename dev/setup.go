package main

import (
	"context"
	"fmt"
	"lapets-backend/lib/configutil"
	"lapets-backend/lib/petstore"
	"lapets-backend/services/registry"
	"log/slog"
	"os"
	"os/exec"
)

func cmd(name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fullCmd := name
	for _, a := range args {
		fullCmd += " "
		fullCmd += a
	}

	fmt.Printf("$ %s\n", fullCmd)
	err := cmd.Run()
	if err != nil {
		os.Exit(1)
	}
}

// CreateLocalStack starts the fake smtp server alerts are sent to and
// the trace collector.
func CreateLocalStack() error {
	err := os.Chdir("dev/local_stack")
	if err != nil {
		return err
	}
	cmd("docker", "compose", "up", "-d")
	return os.Chdir("../..")
}

// CreatePetDB creates the dev database and fills in the shelter catalog.
func CreatePetDB() error {
	db, err := configutil.Database{File: "<dev_state>/lapets.db"}.OpenDB(petstore.Schema)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := registry.New(registry.Options{})
	if err != nil {
		return err
	}
	return reg.InitializeShelterMetadata(context.Background(), petstore.NewStore(db))
}

func PrintConfigLocations() {
	slog.Info("the dev database lives at dev/.state/lapets.db, point config.local.json5 at `<dev_state>/lapets.db` and set alerts.smtp to localhost:1025 to use the local stack.")
}
