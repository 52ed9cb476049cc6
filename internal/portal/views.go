package portal

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"intake-portal/internal/analyses"
	"intake-portal/internal/clients"
	"intake-portal/internal/files"
	"intake-portal/internal/shared/server/respond"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	viewClientUpload      = "client_upload.html"
	viewAttorneyLogin     = "attorney_login.html"
	viewAttorneyDashboard = "attorney_dashboard.html"
)

// DashboardView is the attorney dashboard model.
type DashboardView struct {
	Clients     []clients.Client
	ClientID    int64
	FilesListed bool
	Files       []files.Link
	Job         *analyses.JobResponse
	PollURL     string
}

type uploadView struct {
	SignedIn bool
}

func renderHTML(c *gin.Context, status int, name string, data any) {
	c.Render(status, render.HTML{Template: templates, Name: name, Data: data})
}

// renderDashboard writes the dashboard as HTML, or as JSON for API callers.
func renderDashboard(c *gin.Context, status int, view DashboardView) {
	if respond.WantsJSON(c) {
		respond.JSON(c, status, view.payload())
		return
	}
	renderHTML(c, status, viewAttorneyDashboard, view)
}

// payload shapes the view for JSON callers. Only the sections the action produced are included.
func (v DashboardView) payload() gin.H {
	out := gin.H{}
	if v.Clients != nil {
		out["clients"] = v.Clients
	}
	if v.FilesListed {
		links := v.Files
		if links == nil {
			links = []files.Link{}
		}
		out["clientId"] = v.ClientID
		out["files"] = links
	}
	if v.Job != nil {
		out["analysis"] = v.Job
	}
	if v.PollURL != "" {
		out["pollUrl"] = v.PollURL
	}
	return out
}
