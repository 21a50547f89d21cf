package idgenerator

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type IDGeneratorTestSuite struct {
	suite.Suite
	ig *IDGenerator
}

func (s *IDGeneratorTestSuite) SetupTest() {
	s.ig = NewIDGenerator().(*IDGenerator)
}

func (s *IDGeneratorTestSuite) TestVersion() {
	id, err := s.ig.GenerateID()
	s.NoError(err)

	parsed, err := uuid.Parse(id)
	s.NoError(err)
	s.Equal(uuid.Version(7), parsed.Version())
}

func (s *IDGeneratorTestSuite) TestCollision() {
	seen := make(map[string]struct{})
	for range 1000 {
		id, err := s.ig.GenerateID()
		s.NoError(err)
		s.NotContains(seen, id)
		seen[id] = struct{}{}
	}
}

func (s *IDGeneratorTestSuite) TestReadError() {
	s.ig = NewIDGenerator(WithReader(strings.NewReader(""))).(*IDGenerator)

	id, err := s.ig.GenerateID()
	s.ErrorIs(err, io.EOF)
	s.Zero(id)
}

func TestIDGeneratorTestSuite(t *testing.T) {
	suite.Run(t, new(IDGeneratorTestSuite))
}
