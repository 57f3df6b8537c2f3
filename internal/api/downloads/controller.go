package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Tube/internal/download"
	"github.com/hbomb79/Tube/pkg/logger"
	"github.com/labstack/echo/v4"
)

// DownloadIDHeader carries the ID of the download a response belongs to, which
// can be used to subscribe to progress for that specific download.
const DownloadIDHeader = "X-Download-Id"

const attachmentName = "video.mp4"

var errPartialDelivery = errors.New("response ended before the whole file was sent")

type (
	CreateRequest struct {
		URL        string `json:"url" validate:"required"`
		Resolution string `json:"resolution" validate:"omitempty,max=32"`
		ProgressID string `json:"progressId" validate:"omitempty,uuid"`
	}

	Service interface {
		Download(ctx context.Context, request download.Request, deliver download.DeliverFunc) error
	}

	Controller struct {
		service  Service
		validate *validator.Validate
	}
)

var controllerLogger = logger.Get("DownloadsController")

func New(validate *validator.Validate, service Service) *Controller {
	return &Controller{service: service, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("", controller.create)
}

// create runs a download pipeline for the URL in the request body, responding
// with the merged file as an attachment named video.mp4.
func (controller *Controller) create(ec echo.Context) error {
	var request CreateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := controller.validate.Struct(request); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && validationErrs[0].Field() == "ProgressID" {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid progressId")
		}

		return echo.NewHTTPError(http.StatusBadRequest, "Invalid URL")
	}

	id := uuid.New()
	if request.ProgressID != "" {
		id = uuid.MustParse(request.ProgressID)
	}

	controllerLogger.Emit(logger.INFO, "Received URL: %s Resolution: %q (download %s)\n", request.URL, request.Resolution, id)
	ec.Response().Header().Set(DownloadIDHeader, id.String())

	err := controller.service.Download(
		ec.Request().Context(),
		download.Request{ID: id, URL: request.URL, Resolution: request.Resolution},
		func(path string) error { return sendFile(ec, path) },
	)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, download.ErrInvalidSourceURL):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid URL")
	case errors.Is(err, download.ErrDelivery):
		if ec.Response().Committed {
			controllerLogger.Emit(logger.ERROR, "Download %s was only partially delivered: %v\n", id, err)
			return nil
		}

		controllerLogger.Emit(logger.ERROR, "Error sending file for download %s: %v\n", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error sending file")
	default:
		controllerLogger.Emit(logger.ERROR, "Error during download and merge of %s: %v\n", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error downloading video")
	}
}

// conditionalHeaders would let http.ServeContent answer with a 206 or 304
// instead of the full file.
var conditionalHeaders = []string{"Range", "If-Range", "If-Match", "If-None-Match", "If-Modified-Since", "If-Unmodified-Since"}

// sendFile writes the file at path to the response as an attachment. An error is
// returned if the file could not be sent, or if fewer bytes were written to the
// response than the file contains.
func sendFile(ec echo.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	// The merged file only exists for this response, so it is always sent whole.
	for _, header := range conditionalHeaders {
		ec.Request().Header.Del(header)
	}

	if err := ec.Attachment(path, attachmentName); err != nil {
		return err
	}

	if sent := ec.Response().Size; sent < info.Size() {
		return fmt.Errorf("%w (%d of %d bytes)", errPartialDelivery, sent, info.Size())
	}

	return nil
}
