package auth_test

//go:generate mockgen -source=auth.go -destination=mocks/mocks.go -package=mocks JWTValidator

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/middleware/auth"
	"hashplanet/pkg/platform/middleware/auth/mocks"
	"hashplanet/pkg/testutil"
)

type RequireAuthSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	validator *mocks.MockJWTValidator
	handler   http.Handler
	caller    id.Principal
	reached   bool
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.validator = mocks.NewMockJWTValidator(s.ctrl)
	s.caller = ""
	s.reached = false
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.handler = auth.RequireAuth(s.validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.reached = true
		s.caller = auth.GetPrincipal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (s *RequireAuthSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RequireAuthSuite) request(header string) *httptest.ResponseRecorder {
	req := testutil.NewRequest(s.T(), http.MethodPost, "/claims")
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return testutil.DoRequest(s.handler, req)
}

func (s *RequireAuthSuite) TestValidTokenSetsPrincipal() {
	s.validator.EXPECT().ValidateToken("good").Return(&auth.JWTClaims{Subject: "alice"}, nil)

	rr := s.request("Bearer good")

	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.True(s.reached)
	s.Equal(id.Principal("alice"), s.caller)
}

func (s *RequireAuthSuite) TestMissingHeader() {
	rr := s.request("")

	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	s.False(s.reached)
}

func (s *RequireAuthSuite) TestWrongScheme() {
	rr := s.request("Basic YWxpY2U6cGFzcw==")

	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	s.False(s.reached)
}

func (s *RequireAuthSuite) TestInvalidToken() {
	s.validator.EXPECT().ValidateToken("expired").Return(nil, errors.New("token has expired"))

	rr := s.request("Bearer expired")

	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	s.False(s.reached)
}

func (s *RequireAuthSuite) TestSubjectMustBePrincipal() {
	s.validator.EXPECT().ValidateToken("blank").Return(&auth.JWTClaims{Subject: ""}, nil)

	rr := s.request("Bearer blank")

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	assert.False(s.T(), s.reached)
}
