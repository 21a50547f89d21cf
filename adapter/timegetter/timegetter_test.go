package timegetter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type TimeGetterTestSuite struct {
	suite.Suite
	tg *TimeGetter
}

func (s *TimeGetterTestSuite) SetupTest() {
	s.tg = NewTimeGetter().(*TimeGetter)
}

func (s *TimeGetterTestSuite) TestGetTime() {
	before := time.Now().Truncate(time.Millisecond)
	result := s.tg.GetTime()
	after := time.Now()

	s.False(result.Before(before))
	s.False(result.After(after))
	s.Zero(result.Nanosecond() % int(time.Millisecond))
}

func (s *TimeGetterTestSuite) TestWithClock() {
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
	s.tg = NewTimeGetter(WithClock(func() time.Time { return fixed })).(*TimeGetter)

	s.Equal(time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC), s.tg.GetTime())
}

func TestTimeGetterTestSuite(t *testing.T) {
	suite.Run(t, new(TimeGetterTestSuite))
}
