package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFileFormats(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "config.json",
			body: `{"app":{"AppPort":"9000","AllowedOrigins":["http://a.test","http://b.test"]},
"database":{"Driver":"sqlite","DBName":"blogtest"},
"uploads":{"Dir":"/tmp/up","MaxSizeMB":8},
"redis":{"Enabled":true,"RedisPort":6380}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			body: `app:
  AppPort: "9000"
  AllowedOrigins: ["http://a.test", "http://b.test"]
database:
  Driver: sqlite
  DBName: blogtest
uploads:
  Dir: /tmp/up
  MaxSizeMB: 8
redis:
  Enabled: true
  RedisPort: 6380
`,
		},
		{
			name: "toml",
			file: "config.toml",
			body: `[app]
AppPort = "9000"
AllowedOrigins = ["http://a.test", "http://b.test"]

[database]
Driver = "sqlite"
DBName = "blogtest"

[uploads]
Dir = "/tmp/up"
MaxSizeMB = 8

[redis]
Enabled = true
RedisPort = 6380
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c AppConfig
			if err := loadConfigFile(writeFile(t, tc.file, tc.body), &c); err != nil {
				t.Fatalf("loadConfigFile: %v", err)
			}
			if c.AppPort != "9000" {
				t.Fatalf("expected port 9000, got %q", c.AppPort)
			}
			if want := []string{"http://a.test", "http://b.test"}; !reflect.DeepEqual(c.AllowedOrigins, want) {
				t.Fatalf("expected origins %v, got %v", want, c.AllowedOrigins)
			}
			if c.DBDriver != "sqlite" || c.DBName != "blogtest" {
				t.Fatalf("unexpected database section: %q %q", c.DBDriver, c.DBName)
			}
			if c.UploadsDir != "/tmp/up" || c.MaxUploadSizeMB != 8 {
				t.Fatalf("unexpected uploads section: %q %d", c.UploadsDir, c.MaxUploadSizeMB)
			}
			if !c.CacheEnabled || c.RedisPort != 6380 {
				t.Fatalf("unexpected redis section: %v %d", c.CacheEnabled, c.RedisPort)
			}
		})
	}
}

func TestLoadConfigFileMissingIsIgnored(t *testing.T) {
	var c AppConfig
	if err := loadConfigFile(filepath.Join(t.TempDir(), "absent.json"), &c); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadConfigFileRejectsMalformed(t *testing.T) {
	var c AppConfig
	if err := loadConfigFile(writeFile(t, "config.json", "{"), &c); err == nil {
		t.Fatal("expected error for malformed json")
	}
	if err := loadConfigFile(writeFile(t, "config.ini", "a=b"), &c); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("CORS_ORIGIN", "http://front.test")
	t.Setenv("MONGO_URI", "mongodb://db.test:27017")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "2")

	var c AppConfig
	applyDefaults(&c)
	if c.AppPort != "4000" || c.DBDriver != "mongo" || c.UploadsDir != "uploads" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.MaxUploadBytes() != 50<<20 {
		t.Fatalf("expected 50MiB default, got %d", c.MaxUploadBytes())
	}

	applyEnvOverrides(&c)
	if c.AppPort != "5000" {
		t.Fatalf("expected PORT override, got %q", c.AppPort)
	}
	if !reflect.DeepEqual(c.AllowedOrigins, []string{"http://front.test"}) {
		t.Fatalf("expected CORS_ORIGIN override, got %v", c.AllowedOrigins)
	}
	if c.DatabaseURI != "mongodb://db.test:27017" {
		t.Fatalf("expected MONGO_URI override, got %q", c.DatabaseURI)
	}
	if c.MaxUploadBytes() != 2<<20 {
		t.Fatalf("expected 2MiB, got %d", c.MaxUploadBytes())
	}
}

func TestGormDialector(t *testing.T) {
	if _, err := gormDialector(AppConfig{DBDriver: "mongo"}); err == nil {
		t.Fatal("expected mongo to be rejected as relational driver")
	}
	d, err := gormDialector(AppConfig{DBDriver: "sqlite", DBName: "x"})
	if err != nil {
		t.Fatalf("sqlite dialector: %v", err)
	}
	if d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %s", d.Name())
	}
}
