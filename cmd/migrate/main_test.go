package main

import (
	"bytes"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/radiology-ops/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	version uint
	verErr  error
	forced  int
}

func (f *fakeMigrator) Up() error { return f.upErr }
func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Force(version int) error { f.forced = version; return nil }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, f.verErr
}

func TestRunUpTreatsNoChangeAsSuccess(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&fakeMigrator{upErr: migrate.ErrNoChange}, nil, &out))
	assert.Contains(t, out.String(), "migrations complete")

	err := run(&fakeMigrator{upErr: errors.New("syntax error")}, []string{"up"}, &out)
	assert.ErrorContains(t, err, "migrate up")
}

func TestRunDown(t *testing.T) {
	m := &fakeMigrator{}
	var out bytes.Buffer
	require.NoError(t, run(m, []string{"down"}, &out))
	require.NoError(t, run(m, []string{"down", "3"}, &out))
	assert.Equal(t, []int{-1, -3}, m.steps)

	assert.Error(t, run(m, []string{"down", "0"}, &out))
	assert.Error(t, run(m, []string{"down", "x"}, &out))
}

func TestRunVersionAndForce(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"}, &out))
	assert.Contains(t, out.String(), "no migrations applied")

	out.Reset()
	require.NoError(t, run(&fakeMigrator{version: 4}, []string{"version"}, &out))
	assert.Equal(t, "version 4 (dirty=false)\n", out.String())

	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"force", "2"}, &out))
	assert.Equal(t, 2, m.forced)
	assert.Error(t, run(m, []string{"force"}, &out))
	assert.Error(t, run(m, []string{"sideways"}, &out))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(appmigrations.FS, "*.sql")
	require.NoError(t, err)
	sort.Strings(names)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		}
	}
	assert.Len(t, ups, 4)
	assert.Equal(t, ups, downs)
	assert.True(t, ups["000001_appointments"])
}
