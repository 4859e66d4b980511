package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/privacy"
)

// DefaultForwardTitle titles forwarded messages on services that support a title.
const DefaultForwardTitle = "Face tracking event"

// ShoutrrrForwarder forwards events to every configured shoutrrr service URL
// through a single sender.
type ShoutrrrForwarder struct {
	urls   []string
	title  string
	sender *router.ServiceRouter
}

// NewShoutrrrForwarder validates the service URLs and builds the sender.
func NewShoutrrrForwarder(urls []string, timeout time.Duration) (*ShoutrrrForwarder, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one shoutrrr URL is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// Service URLs carry tokens; never surface them.
		return nil, errors.New(privacy.WrapError(err)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("operation", "create_sender").
			Context("url_count", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrForwarder{
		urls:   slices.Clone(urls),
		title:  DefaultForwardTitle,
		sender: sender,
	}, nil
}

// Name implements Forwarder.
func (s *ShoutrrrForwarder) Name() string { return "shoutrrr" }

// Forward implements Forwarder. The router applies its own timeout.
func (s *ShoutrrrForwarder) Forward(_ context.Context, event *Event) error {
	params := stypes.Params{}
	params.SetTitle(s.title)

	for _, err := range s.sender.Send(event.Message, &params) {
		if err != nil {
			return errors.New(fmt.Errorf("shoutrrr send: %w", privacy.WrapError(err))).
				Component(componentName).
				Category(errors.CategoryIntegration).
				Context("url_count", len(s.urls)).
				Build()
		}
	}
	return nil
}
