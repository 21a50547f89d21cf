package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func (s *ConfigTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ConfigTestSuite) writeEnv(content string) string {
	name := filepath.Join(s.dir, ".env")
	s.NoError(os.WriteFile(name, []byte(content), 0o600))
	return name
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load(filepath.Join(s.dir, "missing.env"), nil)
	s.NoError(err)
	s.Equal("data/books.db", cfg.Data.File)
	s.Equal(0.1, cfg.Data.Threshold)
	s.Equal("INFO", cfg.Log.Level)
	s.Equal("text", cfg.Log.Format)
	s.True(cfg.Timestamps)
}

func (s *ConfigTestSuite) TestEnvFile() {
	name := s.writeEnv("SHELFDB_DATA_FILE=/tmp/shelf.db\nSHELFDB_LOG_LEVEL=debug\nMONGODB_URI=ignored\n")

	cfg, err := Load(name, nil)
	s.NoError(err)
	s.Equal("/tmp/shelf.db", cfg.Data.File)
	s.Equal("DEBUG", cfg.Log.Level)
	s.Equal("text", cfg.Log.Format)
}

func (s *ConfigTestSuite) TestEnvironmentWins() {
	name := s.writeEnv("SHELFDB_LOG_FORMAT=text\n")

	cfg, err := Load(name, []string{
		"SHELFDB_LOG_FORMAT=JSON",
		"SHELFDB_TIMESTAMPS=false",
		"SHELFDB_DATA_THRESHOLD=0.5",
		"HOME=/root",
		"broken",
	})
	s.NoError(err)
	s.Equal("json", cfg.Log.Format)
	s.False(cfg.Timestamps)
	s.Equal(0.5, cfg.Data.Threshold)
}

func (s *ConfigTestSuite) TestInMemory() {
	cfg, err := Load("", []string{"SHELFDB_DATA_FILE="})
	s.NoError(err)
	s.Empty(cfg.Data.File)
}

func (s *ConfigTestSuite) TestInvalid() {
	s.Run("Level", func() {
		_, err := Load("", []string{"SHELFDB_LOG_LEVEL=loud"})
		s.Error(err)
	})
	s.Run("Format", func() {
		_, err := Load("", []string{"SHELFDB_LOG_FORMAT=xml"})
		s.Error(err)
	})
	s.Run("Threshold", func() {
		_, err := Load("", []string{"SHELFDB_DATA_THRESHOLD=2"})
		s.Error(err)
	})
	s.Run("Unmarshal", func() {
		_, err := Load("", []string{"SHELFDB_TIMESTAMPS=maybe"})
		s.Error(err)
	})
	s.Run("Unreadable", func() {
		_, err := Load(s.dir, nil)
		s.Error(err)
	})
}

func (s *ConfigTestSuite) TestPropKey() {
	k, ok := propKey("shelfdb_log_level")
	s.True(ok)
	s.Equal("log.level", k)

	_, ok = propKey("SHELFDB_")
	s.False(ok)

	_, ok = propKey("PATH")
	s.False(ok)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
