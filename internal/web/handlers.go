// Package web serves the chat pages: conversation view, input capture
// and the pending-response processing step.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vennietweek/llm-chat/internal/models"
	"github.com/vennietweek/llm-chat/internal/render"
	"github.com/vennietweek/llm-chat/internal/storage"
	"github.com/vennietweek/llm-chat/internal/worker"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Dispatcher runs one inference job and returns the stored reply.
type Dispatcher interface {
	Process(ctx context.Context, userInput string) (*models.Message, error)
}

// Handler wires HTTP routes to the message store and the inference
// dispatcher.
type Handler struct {
	store          *storage.MessageStore
	dispatcher     Dispatcher
	processTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(store *storage.MessageStore, dispatcher Dispatcher, processTimeout time.Duration) *Handler {
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	return &Handler{
		store:          store,
		dispatcher:     dispatcher,
		processTimeout: processTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))
	staticRoot, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	router.StaticFS("/static", http.FS(staticRoot))

	router.GET("/", h.index)
	router.POST("/chat", h.captureInput)
	router.GET("/process", h.processPending)
}

// index renders the full conversation and the input form.
func (h *Handler) index(c *gin.Context) {
	msgs, err := h.store.List(c.Request.Context())
	if err != nil {
		log.Printf("[web] list messages: %v", err)
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"History": render.History(msgs),
		"Refresh": false,
	})
}

// captureInput stores the user turn and shows it immediately with a
// loading bubble; the page then refreshes into /process.
func (h *Handler) captureInput(c *gin.Context) {
	userInput := strings.TrimSpace(c.PostForm("user_input"))
	if userInput == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.Add(ctx, models.RoleUser, userInput); err != nil {
		log.Printf("[web] store user input: %v", err)
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}
	msgs, err := h.store.List(ctx)
	if err != nil {
		log.Printf("[web] list messages: %v", err)
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"History": render.HistoryWithLoading(msgs),
		"Refresh": true,
	})
}

// processPending runs the inference job for the newest user turn and
// sends the browser back to the conversation.
func (h *Handler) processPending(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.processTimeout)
	defer cancel()

	latest, err := h.store.LatestUser(ctx)
	if err != nil {
		log.Printf("[web] find pending input: %v", err)
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}
	if latest == nil {
		log.Printf("[web] no user message found to process")
		h.redirectHome(c)
		return
	}

	reply, err := h.dispatcher.Process(ctx, latest.Content)
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.HTML(http.StatusTooManyRequests, "redirect.html", gin.H{
				"URL":   "/process",
				"Delay": 1,
				"Note":  "Server is busy, retrying...",
			})
			return
		}
		log.Printf("[web] process input: %v", err)
		c.String(http.StatusInternalServerError, "Error: %v", err)
		return
	}
	log.Printf("[web] stored reply %d (%d bytes)", reply.ID, len(reply.Content))
	h.redirectHome(c)
}

func (h *Handler) redirectHome(c *gin.Context) {
	c.HTML(http.StatusOK, "redirect.html", gin.H{
		"URL":   "/",
		"Delay": 0,
		"Note":  "Response received, redirecting...",
	})
}
