package route

import (
	"net/http"
	"os"
	"path/filepath"

	"obstaclecam/internal/config"
	"obstaclecam/internal/handler"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/middleware"
	"obstaclecam/internal/repository"
	"obstaclecam/internal/service/websocket"
)

// Deps are the services the HTTP surface talks to.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Hub           *websocket.HubService
	Models        handler.ModelController
	Runs          handler.RunRecorder
	ImageRepo     repository.ImageRepository
	DetectionRepo repository.DetectionRepository
	RunRepo       repository.EvaluatorRunRepository
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean(path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers static files, API endpoints and log/auth endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	cfg, log := d.Config, d.Logger

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Viewer stream
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(d.Hub, log))

	// Gallery
	mux.HandleFunc("/api/pictures", handler.GetPicturesFromDBHandler(cfg, log, d.ImageRepo, d.DetectionRepo))
	mux.HandleFunc("/api/pictures/view", handler.ViewPictureHandler(cfg))
	mux.HandleFunc("/api/pictures/clear", handler.ClearPicturesWithDBHandler(cfg, log, d.ImageRepo))
	mux.HandleFunc("/api/pictures/delete", handler.DeletePictureHandler(cfg, log, d.ImageRepo))
	mux.HandleFunc("/api/pictures/stats", handler.ImageStatsHandler(log, d.ImageRepo))
	mux.HandleFunc("/api/objects", handler.ObjectNamesHandler(log, d.DetectionRepo))

	// Model lifecycle
	mux.HandleFunc("/api/model/load", handler.LoadModelHandler(d.Models, log))
	mux.HandleFunc("/api/model/free", handler.FreeModelHandler(d.Models, d.Runs, log))
	mux.HandleFunc("/api/model/stats", handler.ModelStatsHandler(d.Models, log))
	mux.HandleFunc("/api/model/runs", handler.EvaluatorRunsHandler(d.RunRepo, log))
	mux.HandleFunc("/api/cameras/facing", handler.CameraFacingHandler(d.Models, log))

	// Log endpoints
	for level, file := range map[string]string{"info": logger.InfoFile, "warning": logger.WarningFile, "error": logger.ErrorFile} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
