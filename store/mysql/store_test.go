package mysql

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
)

func TestNormalizeDSNForcesParseTime(t *testing.T) {
	for name, dsn := range map[string]string{
		"plain":            "user:pass@tcp(localhost:3306)/relaychat",
		"parseTime off":    "user:pass@tcp(localhost:3306)/relaychat?parseTime=false",
		"other loc":        "user:pass@tcp(localhost:3306)/relaychat?parseTime=true&loc=Local",
		"already correct":  "user:pass@tcp(localhost:3306)/relaychat?parseTime=true&loc=UTC",
		"extra parameters": "user:pass@tcp(localhost:3306)/relaychat?charset=utf8mb4&timeout=5s",
	} {
		normalized, err := normalizeDSN(dsn)
		if err != nil {
			t.Errorf("%s: normalizeDSN failed: %v", name, err)
			continue
		}
		cfg, err := gomysql.ParseDSN(normalized)
		if err != nil {
			t.Errorf("%s: normalized DSN does not parse: %v", name, err)
			continue
		}
		if !cfg.ParseTime {
			t.Errorf("%s: parseTime not enforced in %q", name, normalized)
		}
		if cfg.Loc.String() != "UTC" {
			t.Errorf("%s: location not UTC in %q", name, normalized)
		}
	}
}

func TestNormalizeDSNKeepsCallerSettings(t *testing.T) {
	normalized, err := normalizeDSN("user:pass@tcp(db.internal:3306)/relaychat?charset=utf8mb4&timeout=5s")
	if err != nil {
		t.Fatalf("normalizeDSN failed: %v", err)
	}
	cfg, err := gomysql.ParseDSN(normalized)
	if err != nil {
		t.Fatalf("normalized DSN does not parse: %v", err)
	}
	if cfg.Addr != "db.internal:3306" || cfg.DBName != "relaychat" {
		t.Fatalf("address or database lost: %+v", cfg)
	}
	if cfg.Params["charset"] != "utf8mb4" {
		t.Fatalf("caller parameters lost: %+v", cfg.Params)
	}
}

func TestNormalizeDSNRejectsGarbage(t *testing.T) {
	if _, err := normalizeDSN("not a dsn at ::: all"); err == nil {
		t.Fatal("expected an error for an unparseable DSN")
	}
}
