package envcache

import (
	"database/sql"
	"encoding/json"
	"time"
)

// envVersionRow is the raw row shape read back from env_versions; scanRow
// unmarshals its JSON columns into an EnvVersion.
type envVersionRow struct {
	EnvVersionID       string
	WorkdirID          string
	ContentHash        string
	VersionsJSON       string
	PathsJSON          string
	EnvVarsJSON        string
	ConfigModtimesJSON string
	ConfigHash         string
	CreatedAt          time.Time
}

func scanEnvVersionRow(scanner interface{ Scan(...any) error }) (*envVersionRow, error) {
	var r envVersionRow
	if err := scanner.Scan(&r.EnvVersionID, &r.WorkdirID, &r.ContentHash, &r.VersionsJSON,
		&r.PathsJSON, &r.EnvVarsJSON, &r.ConfigModtimesJSON, &r.ConfigHash, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *envVersionRow) toEnvVersion() (*EnvVersion, error) {
	var versions []UpVersion
	if err := json.Unmarshal([]byte(r.VersionsJSON), &versions); err != nil {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal([]byte(r.PathsJSON), &paths); err != nil {
		return nil, err
	}
	var envVars []EnvOperation
	if err := json.Unmarshal([]byte(r.EnvVarsJSON), &envVars); err != nil {
		return nil, err
	}
	var entries []modtimeEntry
	if err := json.Unmarshal([]byte(r.ConfigModtimesJSON), &entries); err != nil {
		return nil, err
	}
	modtimes := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		modtimes[e.File] = time.Unix(0, e.ModTime)
	}

	return &EnvVersion{
		EnvVersionID:   r.EnvVersionID,
		WorkdirID:      r.WorkdirID,
		ContentHash:    r.ContentHash,
		Versions:       versions,
		Paths:          paths,
		EnvVars:        envVars,
		ConfigModtimes: modtimes,
		ConfigHash:     r.ConfigHash,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// marshalBuilder encodes a Builder's columns for insertion into env_versions.
func marshalBuilder(b *Builder) (versionsJSON, pathsJSON, envVarsJSON, modtimesJSON string, err error) {
	vj, err := json.Marshal(b.Versions)
	if err != nil {
		return "", "", "", "", err
	}
	pj, err := json.Marshal(b.Paths)
	if err != nil {
		return "", "", "", "", err
	}
	ej, err := json.Marshal(b.EnvVars)
	if err != nil {
		return "", "", "", "", err
	}

	entries := make([]modtimeEntry, 0, len(b.ConfigModtimes))
	for f, t := range b.ConfigModtimes {
		entries = append(entries, modtimeEntry{File: f, ModTime: t.UnixNano()})
	}
	mj, err := json.Marshal(entries)
	if err != nil {
		return "", "", "", "", err
	}

	return string(vj), string(pj), string(ej), string(mj), nil
}

// nullableString converts Go's zero value for "absent" (empty string) to a
// sql.NullString so optional TEXT columns round-trip as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
