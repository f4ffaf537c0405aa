package health

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one component.
type Check func() error

// Checker manages health checks for the system
type Checker struct {
	mu     sync.Mutex
	checks map[string]Check
}

// NewChecker creates a new health checker
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// RegisterCheck adds a named component check.
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all checks and reports per-component status.
func (c *Checker) Run() (bool, []Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := true
	components := make([]Component, 0, len(c.checks))
	for name, check := range c.checks {
		component := Component{Name: name, Status: StatusUp, LastChecked: time.Now()}
		if err := check(); err != nil {
			component.Status = StatusDown
			component.Error = err.Error()
			healthy = false
		}
		components = append(components, component)
	}
	return healthy, components
}

// Handler returns a gin handler exposing the checker state.
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		healthy, components := c.Run()

		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		ctx.JSON(code, gin.H{
			"status":     status,
			"timestamp":  time.Now().UTC(),
			"components": components,
		})
	}
}
