package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scan reads every *.sql file at the root of fsys and returns the migrations
// ordered by numeric version.
func Scan(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, NewMigrationError("", ".", "read directory", err)
	}

	var migrations []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		m, err := parseFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		if other, dup := seen[m.Version]; dup {
			return nil, NewMigrationError(m.Version, m.FileName, "check duplicates",
				fmt.Errorf("%w: also defined by %s", ErrDuplicateVersion, other))
		}
		seen[m.Version] = m.FileName
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return versionNumber(migrations[i].Version) < versionNumber(migrations[j].Version)
	})
	return migrations, nil
}

// ValidateFileName checks the {version}_{description}.sql convention.
func ValidateFileName(name string) error {
	if !fileNamePattern.MatchString(name) {
		return fmt.Errorf("%w: filename %q does not match pattern '{version}_{description}.sql'", ErrInvalidMigrationFile, name)
	}
	return nil
}

func parseFile(fsys fs.FS, name string) (Migration, error) {
	if err := ValidateFileName(name); err != nil {
		return Migration{}, NewMigrationError("", name, "validate filename", err)
	}
	matches := fileNamePattern.FindStringSubmatch(name)
	version, slug := matches[1], matches[2]

	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Migration{}, NewMigrationError(version, name, "read file", err)
	}
	sql := string(content)

	cleaned := stripComments(sql)
	if strings.TrimSpace(cleaned) == "" {
		return Migration{}, NewMigrationError(version, name, "validate content",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}
	if err := checkParentheses(cleaned); err != nil {
		return Migration{}, NewMigrationError(version, name, "validate content", err)
	}

	description := descriptionFromHeader(sql)
	if description == "" {
		description = strings.ReplaceAll(slug, "_", " ")
	}

	sum := sha256.Sum256(content)
	return Migration{
		Version:     version,
		Description: description,
		SQL:         sql,
		FileName:    name,
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

func versionNumber(version string) int {
	n, _ := strconv.Atoi(version)
	return n
}

func stripComments(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if idx := strings.Index(line, "--"); idx != -1 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString(line)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func checkParentheses(sql string) error {
	depth := 0
	for _, r := range sql {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	return nil
}

// descriptionFromHeader returns the text of a leading "-- Description:" comment.
func descriptionFromHeader(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
