package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"upgrade_checkout_echo/internal/models"
)

const genericMessage = "Something went wrong. Please try again later."

// StatusFor maps an error returned by a handler or service onto an HTTP status
// and a message that is safe to show to the caller
func StatusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, msg
	}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}

	var ue *models.UpstreamError
	if errors.As(err, &ue) {
		return http.StatusBadGateway, fmt.Sprintf("%s request failed", ue.Service)
	}

	return http.StatusInternalServerError, genericMessage
}

// JSONErrorHandler renders errors as {"error": msg}. Browsers asking for HTML get
// the error page instead when a renderer is installed.
func JSONErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := StatusFor(err)

		entry := log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": code,
		})
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Debug("request rejected")
		}

		if wantsHTML(c) && c.Echo().Renderer != nil {
			data := map[string]interface{}{
				"Title":   errorTitle(code),
				"Message": message,
			}
			renderErr := c.Render(code, "error.html", data)
			if renderErr == nil {
				return
			}
			entry.WithError(renderErr).Error("failed to render error page")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]string{"error": message})
		}
		if err != nil {
			entry.WithError(err).Error("failed to write error response")
		}
	}
}

func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

func errorTitle(code int) string {
	switch code {
	case http.StatusNotFound:
		return "Page Not Found"
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusBadGateway:
		return "Payment Provider Unavailable"
	default:
		return "Internal Server Error"
	}
}
