package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/adapter/codegen"
	"github.com/iskim1407-claw/makeit/internal/config"
	"github.com/iskim1407-claw/makeit/internal/domain"
	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
	"github.com/iskim1407-claw/makeit/internal/http/handler"
	"github.com/iskim1407-claw/makeit/internal/http/middleware"
	"github.com/iskim1407-claw/makeit/internal/jwt"
	"github.com/iskim1407-claw/makeit/internal/repository"
	authsvc "github.com/iskim1407-claw/makeit/internal/service/auth"
	"github.com/iskim1407-claw/makeit/internal/service/credential"
	"github.com/iskim1407-claw/makeit/internal/service/deploy"
)

const (
	testSessionSecret = "0123456789abcdef0123456789abcdef"
	testUser          = "user-1"
)

type fakeOAuthService struct {
	startErr    error
	completeErr error
	identityErr error
	session     *domainoauth.IdentitySession

	startIn    authsvc.StartAuthorizationInput
	callbackIn authsvc.CallbackInput
	callbackBy string
}

func (f *fakeOAuthService) StartAuthorization(_ context.Context, in authsvc.StartAuthorizationInput) (*authsvc.StartAuthorizationOutput, error) {
	f.startIn = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &authsvc.StartAuthorizationOutput{AuthorizationURL: "https://vercel.com/oauth/authorize?state=s", State: "s"}, nil
}

func (f *fakeOAuthService) CompleteAuthorization(_ context.Context, in authsvc.CallbackInput, userID string) (domain.Credential, error) {
	f.callbackIn = in
	f.callbackBy = userID
	if f.completeErr != nil {
		return domain.Credential{}, f.completeErr
	}
	return domain.Credential{UserID: userID, Provider: domain.Provider(in.Provider)}, nil
}

func (f *fakeOAuthService) CompleteIdentityLogin(_ context.Context, code string) (*domainoauth.IdentitySession, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return f.session, nil
}

type fakeDeployer struct {
	result  domain.DeploymentResult
	err     error
	userID  string
	project domain.GeneratedProject
}

func (f *fakeDeployer) Deploy(_ context.Context, userID string, project domain.GeneratedProject) (domain.DeploymentResult, error) {
	f.userID = userID
	f.project = project
	return f.result, f.err
}

type fakeGenerator struct {
	project  domain.GeneratedProject
	reply    string
	err      error
	req      codegen.GenerateRequest
	messages []codegen.Message
}

func (f *fakeGenerator) Generate(_ context.Context, req codegen.GenerateRequest) (domain.GeneratedProject, error) {
	f.req = req
	return f.project, f.err
}

func (f *fakeGenerator) Chat(_ context.Context, messages []codegen.Message) (string, error) {
	f.messages = messages
	return f.reply, f.err
}

type testServer struct {
	engine      *gin.Engine
	oauth       *fakeOAuthService
	deployer    *fakeDeployer
	generator   *fakeGenerator
	credentials credential.Service
	token       string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	verifier := jwt.NewSessionVerifier(testSessionSecret)
	token, err := verifier.Issue(testUser, "u@example.com", time.Hour)
	require.NoError(t, err)

	s := &testServer{
		oauth:       &fakeOAuthService{},
		deployer:    &fakeDeployer{},
		generator:   &fakeGenerator{},
		credentials: credential.NewService(repository.NewMemoryCredentialRepo(node), zap.NewNop()),
		token:       token,
	}
	cfg := config.Config{PublicURL: "https://makeit.example", SessionCookie: "makeit_session"}
	session := middleware.NewSession(verifier, cfg.SessionCookie)
	oauthHandler := handler.NewOAuthHandler(s.oauth, cfg, zap.NewNop())
	tokenHandler := handler.NewTokenHandler(s.credentials, zap.NewNop())
	deployHandler := handler.NewDeployHandler(s.deployer, s.generator, zap.NewNop())

	r := gin.New()
	r.GET("/auth/callback", oauthHandler.IdentityCallback)
	r.GET("/oauth/:provider/start", session.Optional, oauthHandler.OAuthStart)
	r.GET("/oauth/:provider/callback", session.Optional, oauthHandler.OAuthCallback)
	r.GET("/tokens", session.Required, tokenHandler.Status)
	r.DELETE("/tokens", session.Required, tokenHandler.Disconnect)
	r.POST("/deploy", session.Required, deployHandler.Deploy)
	r.POST("/generate", session.Required, deployHandler.Generate)
	r.POST("/chat", session.Required, deployHandler.Chat)
	s.engine = r
	return s
}

func (s *testServer) do(method, target, body string, signedIn bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if signedIn {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func dashboardQuery(t *testing.T, w *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/dashboard", loc.Path)
	return loc.Query()
}

func TestOAuthStart(t *testing.T) {
	t.Run("redirects to provider", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/oauth/vercel/start", "", true)
		require.Equal(t, http.StatusFound, w.Code)
		require.Equal(t, "https://vercel.com/oauth/authorize?state=s", w.Header().Get("Location"))
		require.Equal(t, testUser, s.oauth.startIn.UserID)
		require.Equal(t, "https://makeit.example/oauth/vercel/callback", s.oauth.startIn.RedirectURI)
	})

	t.Run("anonymous goes to login", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/oauth/vercel/start", "", false)
		require.Equal(t, http.StatusFound, w.Code)
		require.Equal(t, "https://makeit.example/login", w.Header().Get("Location"))
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t)
		s.oauth.startErr = domainoauth.ErrProviderNotConfigured
		w := s.do(http.MethodGet, "/oauth/vercel/start", "", true)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.JSONEq(t, `{"error":"Vercel OAuth not configured"}`, w.Body.String())
	})

	t.Run("unknown provider", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/oauth/gitlab/start", "", true)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOAuthCallback(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/oauth/vercel/callback?code=c&state=st", "", true)
		q := dashboardQuery(t, w)
		require.Equal(t, "vercel_connected", q.Get("success"))
		require.Equal(t, "c", s.oauth.callbackIn.Code)
		require.Equal(t, "st", s.oauth.callbackIn.State)
		require.Equal(t, "https://makeit.example/oauth/vercel/callback", s.oauth.callbackIn.RedirectURI)
		require.Equal(t, testUser, s.oauth.callbackBy)
	})

	t.Run("failure still redirects", func(t *testing.T) {
		s := newTestServer(t)
		s.oauth.completeErr = domainoauth.ErrStateExpired
		w := s.do(http.MethodGet, "/oauth/vercel/callback?code=c&state=st", "", true)
		q := dashboardQuery(t, w)
		require.Equal(t, "state_expired", q.Get("error"))
		require.Empty(t, q.Get("success"))
	})

	t.Run("provider error forwarded", func(t *testing.T) {
		s := newTestServer(t)
		s.oauth.completeErr = domainoauth.ErrProviderDenied
		w := s.do(http.MethodGet, "/oauth/vercel/callback?error=access_denied", "", false)
		q := dashboardQuery(t, w)
		require.Equal(t, "vercel_auth_failed", q.Get("error"))
		require.Equal(t, "access_denied", s.oauth.callbackIn.ProviderError)
		require.Empty(t, s.oauth.callbackBy)
	})
}

func TestIdentityCallback(t *testing.T) {
	t.Run("sets session cookie", func(t *testing.T) {
		s := newTestServer(t)
		s.oauth.session = &domainoauth.IdentitySession{AccessToken: "session-token", ExpiresIn: 600, UserID: testUser}
		w := s.do(http.MethodGet, "/auth/callback?code=abc", "", false)
		require.Equal(t, http.StatusFound, w.Code)
		require.Equal(t, "https://makeit.example/dashboard", w.Header().Get("Location"))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "makeit_session", cookies[0].Name)
		require.Equal(t, "session-token", cookies[0].Value)
		require.Equal(t, 600, cookies[0].MaxAge)
		require.True(t, cookies[0].HttpOnly)
	})

	t.Run("exchange failure redirects without cookie", func(t *testing.T) {
		s := newTestServer(t)
		s.oauth.identityErr = domainoauth.ErrIdentityExchangeFailed
		w := s.do(http.MethodGet, "/auth/callback?code=abc", "", false)
		require.Equal(t, http.StatusFound, w.Code)
		require.Empty(t, w.Result().Cookies())
	})
}

func TestTokens(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w := s.do(http.MethodGet, "/tokens", "", false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/tokens", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"connected":{"github":false,"vercel":false},"canDeploy":false}`, w.Body.String())

	_, err := s.credentials.Save(ctx, testUser, domain.ProviderGitHub, "gh", credential.SaveOptions{})
	require.NoError(t, err)
	_, err = s.credentials.Save(ctx, testUser, domain.ProviderVercel, "vc", credential.SaveOptions{})
	require.NoError(t, err)

	w = s.do(http.MethodGet, "/tokens", "", true)
	require.JSONEq(t, `{"connected":{"github":true,"vercel":true},"canDeploy":true}`, w.Body.String())

	w = s.do(http.MethodDelete, "/tokens?provider=gitlab", "", true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"Invalid provider"}`, w.Body.String())

	w = s.do(http.MethodDelete, "/tokens?provider=vercel", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true}`, w.Body.String())

	w = s.do(http.MethodGet, "/tokens", "", true)
	require.JSONEq(t, `{"connected":{"github":true,"vercel":false},"canDeploy":false}`, w.Body.String())
}

func TestDeploy(t *testing.T) {
	body := `{"projectName":"My App","files":[{"path":"a.txt","content":"hi"}]}`

	t.Run("success", func(t *testing.T) {
		s := newTestServer(t)
		vercelURL := "https://my-app.vercel.app"
		s.deployer.result = domain.DeploymentResult{
			GitHub: domain.GitHubResult{URL: "https://github.com/octo/my-app", Owner: "octo", Repo: "my-app"},
			Vercel: domain.VercelResult{URL: &vercelURL, Status: domain.DeployStatusDeploying},
		}
		w := s.do(http.MethodPost, "/deploy", body, true)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{
			"success": true,
			"github": {"url": "https://github.com/octo/my-app", "owner": "octo", "repo": "my-app"},
			"vercel": {"url": "https://my-app.vercel.app", "status": "deploying"}
		}`, w.Body.String())
		require.Equal(t, testUser, s.deployer.userID)
		require.Equal(t, "My App", s.deployer.project.ProjectName)
	})

	t.Run("manual setup keeps null url", func(t *testing.T) {
		s := newTestServer(t)
		s.deployer.result = domain.DeploymentResult{
			GitHub: domain.GitHubResult{URL: "https://github.com/octo/my-app", Owner: "octo", Repo: "my-app"},
			Vercel: domain.TriggerOutcome{Err: errors.New("500")}.Result(),
		}
		w := s.do(http.MethodPost, "/deploy", body, true)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"vercel":{"url":null,"status":"manual_setup_required"}`)
	})

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"github missing", &domain.NotConnectedError{Provider: domain.ProviderGitHub}, http.StatusBadRequest, `{"error":"GitHub not connected. Please re-login with GitHub."}`},
		{"vercel missing", &domain.NotConnectedError{Provider: domain.ProviderVercel}, http.StatusBadRequest, `{"error":"Vercel not connected. Please connect your Vercel account."}`},
		{"upstream", &domain.UpstreamError{Provider: domain.ProviderGitHub, Operation: "create repository", Status: 422, Message: "name invalid"}, http.StatusBadRequest, `{"error":"GitHub error: name invalid"}`},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, `{"error":"Unauthorized. Please log in."}`},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, `{"error":"Deployment failed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.deployer.err = tc.err
			w := s.do(http.MethodPost, "/deploy", body, true)
			require.Equal(t, tc.status, w.Code)
			require.JSONEq(t, tc.body, w.Body.String())
		})
	}

	t.Run("incomplete project", func(t *testing.T) {
		s := newTestServer(t)
		s.deployer.err = domain.ErrProjectIncomplete
		w := s.do(http.MethodPost, "/deploy", `{"projectName":"x","files":[]}`, true)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.JSONEq(t, `{"error":"Project name and files required"}`, w.Body.String())
		require.Equal(t, "x", s.deployer.project.ProjectName)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/deploy", `{"projectName":`, true)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.JSONEq(t, `{"error":"Invalid request body"}`, w.Body.String())
		require.Empty(t, s.deployer.userID)
	})

	t.Run("anonymous", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/deploy", body, false)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestDeployReportsMissingConnectionBeforeIncompleteProject(t *testing.T) {
	s := newTestServer(t)
	orchestrator := deploy.NewOrchestrator(s.credentials, nil, nil, deploy.Options{}, nil, zap.NewNop())
	deployHandler := handler.NewDeployHandler(orchestrator, nil, zap.NewNop())
	session := middleware.NewSession(jwt.NewSessionVerifier(testSessionSecret), "makeit_session")

	r := gin.New()
	r.POST("/deploy", session.Required, deployHandler.Deploy)
	s.engine = r

	w := s.do(http.MethodPost, "/deploy", `{"projectName":"x","files":[]}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"GitHub not connected. Please re-login with GitHub."}`, w.Body.String())

	_, err := s.credentials.Save(context.Background(), testUser, domain.ProviderGitHub, "gh-token", credential.SaveOptions{})
	require.NoError(t, err)
	w = s.do(http.MethodPost, "/deploy", `{"projectName":"x","files":[]}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"Vercel not connected. Please connect your Vercel account."}`, w.Body.String())

	_, err = s.credentials.Save(context.Background(), testUser, domain.ProviderVercel, "vc-token", credential.SaveOptions{})
	require.NoError(t, err)
	w = s.do(http.MethodPost, "/deploy", `{"projectName":"x","files":[]}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"Project name and files required"}`, w.Body.String())
}

func TestGenerate(t *testing.T) {
	t.Run("returns project", func(t *testing.T) {
		s := newTestServer(t)
		s.generator.project = domain.GeneratedProject{ProjectName: "todo", Files: []domain.ProjectFile{{Path: "src/app/page.tsx", Content: "x"}}}
		w := s.do(http.MethodPost, "/generate", `{"prompt":"todo app","conversationHistory":[{"role":"user","content":"todo app"}]}`, true)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"projectName":"todo","files":[{"path":"src/app/page.tsx","content":"x"}]}`, w.Body.String())
		require.Equal(t, "todo app", s.generator.req.Prompt)
		require.Len(t, s.generator.req.History, 1)
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t)
		s.generator.err = codegen.ErrNotConfigured
		w := s.do(http.MethodPost, "/generate", `{"prompt":"x"}`, true)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.JSONEq(t, `{"error":"OPENAI_API_KEY not configured"}`, w.Body.String())
	})

	t.Run("unparseable", func(t *testing.T) {
		s := newTestServer(t)
		s.generator.err = codegen.ErrUnparseable
		w := s.do(http.MethodPost, "/generate", `{"prompt":"x"}`, true)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.JSONEq(t, `{"error":"Failed to parse generated code"}`, w.Body.String())
	})
}

func TestChat(t *testing.T) {
	t.Run("returns reply", func(t *testing.T) {
		s := newTestServer(t)
		s.generator.reply = "What pages do you need?"
		w := s.do(http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"a todo app"}]}`, true)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"message":"What pages do you need?"}`, w.Body.String())
		require.Equal(t, []codegen.Message{{Role: "user", Content: "a todo app"}}, s.generator.messages)
	})

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not configured", codegen.ErrNotConfigured, http.StatusInternalServerError, `{"error":"OPENAI_API_KEY not configured"}`},
		{"empty transcript", fmt.Errorf("%w: messages required", domain.ErrInvalidRequest), http.StatusBadRequest, `{"error":"invalid request: messages required"}`},
		{"upstream failure", errors.New("chat completion: 503"), http.StatusInternalServerError, `{"error":"Failed to generate response"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.generator.err = tc.err
			w := s.do(http.MethodPost, "/chat", `{"messages":[]}`, true)
			require.Equal(t, tc.status, w.Code)
			require.JSONEq(t, tc.body, w.Body.String())
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/chat", `{"messages":[]}`, false)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
