// Package portal serves the client upload and attorney dashboard pages.
package portal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/analyses"
	"intake-portal/internal/auth"
	"intake-portal/internal/clients"
	"intake-portal/internal/files"
	"intake-portal/internal/shared/server/middleware"
	"intake-portal/internal/shared/server/respond"
)

const (
	welcomeText     = "Welcome to the Intake Portal. Use /client or /attorney to access your view."
	uploadOKText    = "File uploaded successfully!"
	multipartMemory = 8 << 20
)

// Handler wires the role pages to the services.
type Handler struct {
	Credentials *auth.Credentials
	Tokens      *auth.TokenIssuer
	Clients     *clients.Service
	Files       *files.Service
	Analyses    *analyses.Service
	// WaitTimeout bounds process requests sent with wait=true.
	WaitTimeout  time.Duration
	SecureCookie bool
}

// RegisterRoutes mounts the portal pages on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.home)
	r.GET("/client", h.clientForm)
	r.POST("/client", h.clientUpload)
	r.GET("/attorney", h.attorneyHome)
	r.POST("/attorney", h.attorneyAction)
	r.POST("/login", h.login)
	r.POST("/logout", h.logout)
}

func (h *Handler) home(c *gin.Context) {
	c.String(http.StatusOK, welcomeText)
}

func (h *Handler) clientForm(c *gin.Context) {
	renderHTML(c, http.StatusOK, viewClientUpload, uploadView{
		SignedIn: middleware.RoleFromContext(c) == auth.RoleClient,
	})
}

func (h *Handler) clientUpload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(c, err)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_input", "malformed upload", nil)
		return
	}
	if err := h.authenticate(c, auth.RoleClient); err != nil {
		writeError(c, err)
		return
	}

	fh, err := c.FormFile("file")
	rawID := c.PostForm("client_id")
	if err != nil || strings.TrimSpace(rawID) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_input", "file and client_id are required", nil)
		return
	}
	clientID, err := clients.ParseID(rawID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("clientId", clientID)

	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	rec, err := h.Files.Upload(c.Request.Context(), clientID, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.Message(c, http.StatusOK, uploadOKText, gin.H{"message": uploadOKText, "file": rec})
}

func (h *Handler) attorneyHome(c *gin.Context) {
	if middleware.RoleFromContext(c) != auth.RoleAttorney {
		renderHTML(c, http.StatusOK, viewAttorneyLogin, nil)
		return
	}
	h.roster(c)
}

func (h *Handler) attorneyAction(c *gin.Context) {
	if err := h.authenticate(c, auth.RoleAttorney); err != nil {
		writeError(c, err)
		return
	}

	switch action := c.PostForm("action"); action {
	case "":
		h.roster(c)
	case "add_client":
		h.addClient(c)
	case "list_files":
		h.listFiles(c)
	case "process":
		h.process(c)
	case "cancel":
		h.cancel(c)
	default:
		respond.Error(c, http.StatusBadRequest, "unknown_action", "unknown action", nil)
	}
}

func (h *Handler) roster(c *gin.Context) {
	list, err := h.Clients.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	renderDashboard(c, http.StatusOK, DashboardView{Clients: list})
}

func (h *Handler) addClient(c *gin.Context) {
	name, okName := c.GetPostForm("name")
	caseID, okCase := c.GetPostForm("case_id")
	email, okEmail := c.GetPostForm("email")
	if !okName || !okCase || !okEmail {
		respond.Error(c, http.StatusBadRequest, "invalid_input", "name, case_id and email are required", nil)
		return
	}
	created, err := h.Clients.Add(c.Request.Context(), name, caseID, email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("clientId", created.ID)
	c.Redirect(http.StatusSeeOther, "/attorney")
}

func (h *Handler) listFiles(c *gin.Context) {
	clientID, err := clients.ParseID(c.PostForm("client_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("clientId", clientID)
	links, err := h.Files.ListLinks(c.Request.Context(), clientID)
	if err != nil {
		writeError(c, err)
		return
	}
	renderDashboard(c, http.StatusOK, DashboardView{ClientID: clientID, FilesListed: true, Files: links})
}

func (h *Handler) process(c *gin.Context) {
	clientID, err := clients.ParseID(c.PostForm("client_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("clientId", clientID)
	ctx := c.Request.Context()

	job, err := h.Analyses.Start(ctx, clientID, c.PostForm("blob_name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("analysisId", job.ID)

	if wait, _ := strconv.ParseBool(c.PostForm("wait")); wait {
		waitCtx, cancel := context.WithTimeout(ctx, h.waitTimeout())
		defer cancel()
		done, err := h.Analyses.Wait(waitCtx, job.ID)
		switch {
		case err == nil && done.Status == analyses.StatusCompleted:
			resp := analyses.NewJobResponse(done)
			renderDashboard(c, http.StatusOK, DashboardView{ClientID: clientID, Job: &resp})
			return
		case err == nil:
			he := jobFailure(done)
			respond.Error(c, he.status, he.code, he.message, nil)
			return
		case !errors.Is(err, context.DeadlineExceeded):
			writeError(c, err)
			return
		}
		if done.ID != "" {
			job = done
		}
	}

	resp := analyses.NewJobResponse(job)
	c.Header("Location", pollURL(job.ID))
	renderDashboard(c, http.StatusAccepted, DashboardView{ClientID: clientID, Job: &resp, PollURL: pollURL(job.ID)})
}

func (h *Handler) cancel(c *gin.Context) {
	id := strings.TrimSpace(c.PostForm("analysis_id"))
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_input", "analysis_id is required", nil)
		return
	}
	c.Set("analysisId", id)
	job, err := h.Analyses.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := analyses.NewJobResponse(job)
	renderDashboard(c, http.StatusOK, DashboardView{ClientID: job.ClientID, Job: &resp})
}

func (h *Handler) login(c *gin.Context) {
	username := c.PostForm("username")
	role, ok := auth.ParseRole(username)
	if !ok {
		writeError(c, auth.ErrInvalidCredentials)
		return
	}
	if err := h.Credentials.Check(username, c.PostForm("password"), role); err != nil {
		writeError(c, err)
		return
	}
	token, expiresAt, err := h.startSession(c, role)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"token":     token,
		"role":      role,
		"expiresAt": expiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.SecureCookie, true)
	if respond.WantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/attorney")
}

// authenticate accepts form credentials when any are sent, otherwise a session for role. A
// successful form check also starts a session so browsers can follow redirects.
func (h *Handler) authenticate(c *gin.Context, role auth.Role) error {
	username, hasUser := c.GetPostForm("username")
	password, hasPass := c.GetPostForm("password")
	if hasUser || hasPass {
		if err := h.Credentials.Check(username, password, role); err != nil {
			return err
		}
		middleware.SetRole(c, role)
		if _, _, err := h.startSession(c, role); err != nil {
			return err
		}
		return nil
	}
	if middleware.RoleFromContext(c) == role {
		return nil
	}
	return auth.ErrInvalidCredentials
}

func (h *Handler) startSession(c *gin.Context, role auth.Role) (string, time.Time, error) {
	if h.Tokens == nil {
		return "", time.Time{}, nil
	}
	token, expiresAt, err := h.Tokens.Issue(role)
	if err != nil {
		return "", time.Time{}, err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.Tokens.TTL().Seconds()), "/", "", h.SecureCookie, true)
	return token, expiresAt, nil
}

func (h *Handler) waitTimeout() time.Duration {
	if h.WaitTimeout > 0 {
		return h.WaitTimeout
	}
	return 2 * time.Minute
}

func pollURL(id string) string {
	return "/attorney/analyses/" + id
}
