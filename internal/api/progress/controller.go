package progress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Tube/internal/progress"
	"github.com/hbomb79/Tube/pkg/logger"
	"github.com/labstack/echo/v4"
)

type (
	// FrameDto is the message pushed to websocket subscribers each interval.
	FrameDto struct {
		ID         uuid.UUID `json:"id"`
		Percentage float64   `json:"percentage"`
		Stage      string    `json:"stage"`
	}

	Tracker interface {
		Interval() time.Duration
		LatestSource() progress.Source
		SourceFor(uuid.UUID) progress.Source
	}

	Controller struct {
		tracker  Tracker
		upgrader *websocket.Upgrader
	}
)

var controllerLogger = logger.Get("ProgressController")

func New(tracker Tracker) *Controller {
	return &Controller{
		tracker: tracker,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("", controller.latest)
	eg.GET("/:id", controller.get)
	eg.GET("/:id/ws", controller.socket)
}

// latest streams the percentage of whichever download was most recently
// started, until the client disconnects.
func (controller *Controller) latest(ec echo.Context) error {
	source := controller.tracker.LatestSource()
	openEventStream(ec)

	return controller.notify(ec, source, func(snapshot progress.Snapshot) error {
		return writeEvent(ec, "", formatPercentage(snapshot.Percentage))
	})
}

// get streams the percentage of the download with the 'id' provided. Each change
// of pipeline stage is also announced with a 'stage' event.
func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Download ID is not a valid UUID")
	}

	source := controller.tracker.SourceFor(id)
	openEventStream(ec)

	lastStage := ""
	return controller.notify(ec, source, func(snapshot progress.Snapshot) error {
		if snapshot.Stage != lastStage {
			lastStage = snapshot.Stage
			if err := writeEvent(ec, "stage", snapshot.Stage); err != nil {
				return err
			}
		}

		return writeEvent(ec, "", formatPercentage(snapshot.Percentage))
	})
}

// socket upgrades the connection to a websocket and pushes a FrameDto for the
// download with the 'id' provided each interval, until the client goes away.
func (controller *Controller) socket(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Download ID is not a valid UUID")
	}

	conn, err := controller.upgrader.Upgrade(ec.Response(), ec.Request(), nil)
	if err != nil {
		controllerLogger.Emit(logger.WARNING, "Failed to upgrade progress socket for %s: %v\n", id, err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ec.Request().Context())
	defer cancel()

	// Inbound messages are ignored; a read error means the client has gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	controllerLogger.Emit(logger.NEW, "Progress socket opened for %s\n", id)
	err = progress.Notify(ctx, controller.tracker.Interval(), controller.tracker.SourceFor(id), func(snapshot progress.Snapshot) error {
		return conn.WriteJSON(FrameDto{ID: id, Percentage: roundPercentage(snapshot.Percentage), Stage: snapshot.Stage})
	})
	if err != nil {
		controllerLogger.Emit(logger.DEBUG, "Progress socket for %s closed: %v\n", id, err)
	}

	controllerLogger.Emit(logger.STOP, "Progress socket closed for %s\n", id)
	return nil
}

// notify runs the notifier for the request until the client disconnects. A failed
// write is treated as a disconnect rather than an error.
func (controller *Controller) notify(ec echo.Context, source progress.Source, emit progress.Emitter) error {
	if err := progress.Notify(ec.Request().Context(), controller.tracker.Interval(), source, emit); err != nil {
		controllerLogger.Emit(logger.DEBUG, "Progress stream for %s ended: %v\n", ec.RealIP(), err)
	}

	return nil
}

func openEventStream(ec echo.Context) {
	header := ec.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	ec.Response().WriteHeader(http.StatusOK)
	ec.Response().Flush()
}

func writeEvent(ec echo.Context, name string, data string) error {
	var err error
	if name != "" {
		_, err = fmt.Fprintf(ec.Response(), "event: %s\ndata: %s\n\n", name, data)
	} else {
		_, err = fmt.Fprintf(ec.Response(), "data: %s\n\n", data)
	}
	if err != nil {
		return err
	}

	ec.Response().Flush()
	return nil
}

func formatPercentage(percentage float64) string {
	return fmt.Sprintf("%.2f", percentage)
}

func roundPercentage(percentage float64) float64 {
	return float64(int64(percentage*100+0.5)) / 100
}
