package videos

import (
	"context"
	"net/http"

	"github.com/hbomb79/Tube/internal/provider"
	"github.com/hbomb79/Tube/pkg/logger"
	"github.com/labstack/echo/v4"
)

const publishDateLayout = "2006-01-02"

type (
	// InfoDto is the response for the video info endpoint. Formats contains
	// the resolutions which can be requested from the download endpoint.
	InfoDto struct {
		Title       string   `json:"title"`
		Author      string   `json:"author"`
		Description string   `json:"description"`
		PublishDate string   `json:"publishDate"`
		Formats     []string `json:"formats"`
	}

	Service interface {
		Info(ctx context.Context, url string) (*provider.VideoInfo, error)
	}

	Controller struct {
		service Service
	}
)

var controllerLogger = logger.Get("VideosController")

func New(service Service) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("", controller.get)
}

// get looks up the metadata for the video found at the 'url' query param.
func (controller *Controller) get(ec echo.Context) error {
	url := ec.QueryParam("url")
	info, err := controller.service.Info(ec.Request().Context(), url)
	if err != nil {
		controllerLogger.Emit(logger.ERROR, "Error fetching video info for %q: %v\n", url, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error fetching video info")
	}

	return ec.JSON(http.StatusOK, NewDto(info))
}

func NewDto(info *provider.VideoInfo) *InfoDto {
	dto := &InfoDto{
		Title:       info.Title,
		Author:      info.Author,
		Description: info.Description,
		Formats:     provider.Resolutions(info.Variants),
	}
	if dto.Formats == nil {
		dto.Formats = []string{}
	}
	if !info.PublishDate.IsZero() {
		dto.PublishDate = info.PublishDate.Format(publishDateLayout)
	}

	return dto
}
