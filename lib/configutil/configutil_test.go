package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Port    int      `json:"port"`
	Sources []string `json:"sources"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.True(t, os.IsNotExist(err))

	err = os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		name: "petscrape",
		port: 8080,
	}`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, testConfig{Name: "petscrape", Port: 8080}, cfg)

	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		port: 9090,
		sources: ["spcala"],
	}`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err = ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, testConfig{
		Name:    "petscrape",
		Port:    9090,
		Sources: []string{"spcala"},
	}, cfg)
}

func TestWithDefaults(t *testing.T) {
	cfg, err := WithDefaults(
		testConfig{Port: 1234},
		testConfig{Name: "default", Port: 8080},
	)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, testConfig{Name: "default", Port: 1234}, cfg)
}

func TestOpenSqlite(t *testing.T) {
	db, err := Database{File: filepath.Join(t.TempDir(), "nested", "test.db")}.OpenDB(
		"CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);",
	)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec("INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)

	_, err = Database{}.OpenDB("")
	require.Error(t, err)
}

func TestOpenSqlitePragmas(t *testing.T) {
	db, err := Database{File: filepath.Join(t.TempDir(), "pragmas.db")}.OpenDB(`
		CREATE TABLE IF NOT EXISTS owners (id INTEGER PRIMARY KEY);
		CREATE TABLE IF NOT EXISTS pets (
			id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL REFERENCES owners(id)
		);
	`)
	require.NoError(t, err)
	defer db.Close()

	// no idle connections, so every query below runs on a fresh one
	db.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var foreignKeys int
		err = db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
		require.NoError(t, err)
		require.Equal(t, 1, foreignKeys)

		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		require.Equal(t, "wal", journalMode)
	}

	_, err = db.Exec("INSERT INTO pets (id, owner_id) VALUES (1, 42)")
	require.Error(t, err)
}

func TestOpenSqliteMemoryPragmas(t *testing.T) {
	db, err := OpenSqlite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var foreignKeys int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
	require.NoError(t, err)
	require.Equal(t, 1, foreignKeys)
}
