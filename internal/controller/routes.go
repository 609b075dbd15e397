package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/ranctl/internal/auth"
	"github.com/danmuck/ranctl/internal/macstats"
	"github.com/danmuck/ranctl/internal/module"
	"github.com/danmuck/ranctl/internal/observability"
	"github.com/danmuck/ranctl/internal/protocol"
	"github.com/danmuck/ranctl/internal/ran"
	"github.com/danmuck/ranctl/internal/rrcmeas"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the admin HTTP surface for s.
func (s *Service) Router() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccess(observability.Component("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.registerRoutes(r)
	return r
}

func (s *Service) registerRoutes(r *gin.Engine) {
	srv := s.server
	var validator auth.Validator
	if token := strings.TrimSpace(s.cfg.AdminToken); token != "" {
		validator = auth.StaticToken{Token: token}
	}
	gated := auth.RequireBearer(validator)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(srv.Started()).String(),
			"component": "ranctl",
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":       true,
			"uptime":      time.Since(srv.Started()).String(),
			"connections": len(s.Connections()),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/agents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"agents": srv.Agents()})
	})

	r.GET("/agents/:addr", func(c *gin.Context) {
		agent, ok := s.agentParam(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"agent": agent.Snapshot(), "config": agent.Config()})
	})

	r.GET("/agents/:addr/ues", func(c *gin.Context) {
		agent, ok := s.agentParam(c)
		if !ok {
			return
		}
		ues := agent.UEs()
		out := make([]ran.UESnapshot, 0, len(ues))
		for _, ue := range ues {
			out = append(out, ue.Snapshot())
		}
		c.JSON(http.StatusOK, gin.H{"ues": out})
	})

	r.GET("/tenants", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenants": srv.Registry().Tenants()})
	})

	r.POST("/tenants/:tenant/agents/:addr/mac_stats", gated, func(c *gin.Context) {
		var req macStatsRequest
		if !bindRequest(c, &req) {
			return
		}
		tenant, addr, every, err := parseTarget(c, req.Every)
		if err != nil {
			respondError(c, err)
			return
		}
		m, err := srv.MACStats().Submit(macstats.Request{
			Tenant: tenant,
			Agent:  addr,
			Every:  every,
			Config: req.Config,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if strings.TrimSpace(req.Config.ReportFrequency) == macstats.FrequencyOff {
			c.JSON(http.StatusOK, gin.H{"status": "cancelled", "timer_xid": *req.Config.TimerXID})
			return
		}
		c.JSON(http.StatusAccepted, moduleView(m))
	})

	r.POST("/tenants/:tenant/agents/:addr/ues/:rnti/rrc_measurements", gated, func(c *gin.Context) {
		var req rrcMeasRequest
		if !bindRequest(c, &req) {
			return
		}
		tenant, addr, every, err := parseTarget(c, req.Every)
		if err != nil {
			respondError(c, err)
			return
		}
		rnti, err := strconv.ParseUint(c.Param("rnti"), 0, 32)
		if err != nil {
			respondError(c, module.Invalid("rnti", "%q is not an rnti", c.Param("rnti")))
			return
		}
		m, err := srv.RRCMeasurements().Submit(rrcmeas.Request{
			Tenant: tenant,
			Agent:  addr,
			RNTI:   uint32(rnti),
			Every:  every,
			Config: req.Config,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, moduleView(m))
	})

	r.GET("/modules/:type/:id", func(c *gin.Context) {
		w, id, ok := s.moduleParams(c)
		if !ok {
			return
		}
		m, found := w.Get(id)
		if !found {
			respondError(c, module.NotFound("id", "no %s module %d", w.Name(), id))
			return
		}
		c.JSON(http.StatusOK, moduleView(m))
	})

	r.DELETE("/modules/:type/:id", gated, func(c *gin.Context) {
		w, id, ok := s.moduleParams(c)
		if !ok {
			return
		}
		if srv.Timers().Contains(id) {
			srv.Timers().Cancel(id)
		} else if !w.Remove(id) {
			respondError(c, module.NotFound("id", "no %s module %d", w.Name(), id))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "removed", "id": id})
	})
}

type macStatsRequest struct {
	Every  string                 `json:"every"`
	Config macstats.RequestConfig `json:"config"`
}

type rrcMeasRequest struct {
	Every  string                `json:"every"`
	Config rrcmeas.RequestConfig `json:"config"`
}

// ModuleView is the JSON shape of a module handle.
type ModuleView struct {
	ID        uint32    `json:"id"`
	Type      string    `json:"type"`
	Tenant    uuid.UUID `json:"tenant_id"`
	Agent     string    `json:"agent"`
	Mode      string    `json:"mode"`
	Live      bool      `json:"live"`
	Retcode   uint32    `json:"retcode"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Result    any       `json:"result,omitempty"`
}

type moduleHandle interface {
	module.Module
	ID() uint32
	Type() string
	Tenant() uuid.UUID
	Agent() *ran.Agent
	Recurrence() module.Recurrence
	Live() bool
	Retcode() (protocol.Status, string)
	UpdatedAt() time.Time
}

func moduleView(m module.Module) ModuleView {
	h, ok := m.(moduleHandle)
	if !ok {
		return ModuleView{}
	}
	status, detail := h.Retcode()
	view := ModuleView{
		ID:        h.ID(),
		Type:      h.Type(),
		Tenant:    h.Tenant(),
		Agent:     h.Agent().Addr.String(),
		Mode:      h.Recurrence().Mode.String(),
		Live:      h.Live(),
		Retcode:   uint32(status),
		Detail:    detail,
		UpdatedAt: h.UpdatedAt(),
	}
	switch v := m.(type) {
	case *macstats.Module:
		if reply := v.Reply(); reply != nil {
			view.Result = reply
		}
	case *rrcmeas.Module:
		if report := v.Report(); report != nil {
			view.Result = report
		}
	}
	return view
}

func (s *Service) agentParam(c *gin.Context) (*ran.Agent, bool) {
	addr, err := ran.ParseEtherAddress(c.Param("addr"))
	if err != nil {
		respondError(c, module.Invalid("addr", "%v", err))
		return nil, false
	}
	agent, ok := s.server.Registry().Agent(addr)
	if !ok {
		respondError(c, module.NotFound("agent", "agent %s is not registered", addr))
		return nil, false
	}
	return agent, true
}

func (s *Service) moduleParams(c *gin.Context) (*module.Worker, uint32, bool) {
	var w *module.Worker
	switch c.Param("type") {
	case macstats.TypeName:
		w = s.server.MACStats().Worker
	case rrcmeas.TypeName:
		w = s.server.RRCMeasurements().Worker
	default:
		respondError(c, module.NotFound("type", "unknown module type %q", c.Param("type")))
		return nil, 0, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, module.Invalid("id", "%q is not a module id", c.Param("id")))
		return nil, 0, false
	}
	return w, uint32(id), true
}

func parseTarget(c *gin.Context, every string) (uuid.UUID, ran.EtherAddress, module.Recurrence, error) {
	tenant, err := uuid.Parse(c.Param("tenant"))
	if err != nil {
		return uuid.Nil, ran.EtherAddress{}, module.Recurrence{}, module.Invalid("tenant_id", "%v", err)
	}
	addr, err := ran.ParseEtherAddress(c.Param("addr"))
	if err != nil {
		return uuid.Nil, ran.EtherAddress{}, module.Recurrence{}, module.Invalid("addr", "%v", err)
	}
	rec, err := parseRecurrence(every)
	if err != nil {
		return uuid.Nil, ran.EtherAddress{}, module.Recurrence{}, err
	}
	return tenant, addr, rec, nil
}

// parseRecurrence maps "", "once", "off" and Go durations to a Recurrence.
func parseRecurrence(s string) (module.Recurrence, error) {
	switch strings.TrimSpace(s) {
	case "", "once":
		return module.Once(), nil
	case "off":
		return module.Off(), nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return module.Recurrence{}, module.Invalid("every", "%q is not a duration", s)
	}
	rec := module.Every(d)
	return rec, rec.Validate()
}

func bindRequest(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, module.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, module.ErrNotFound):
		status = http.StatusNotFound
	}
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var cfgErr *module.ConfigError
	if errors.As(err, &cfgErr) {
		body["key"] = cfgErr.Key
	}
	c.JSON(status, body)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
