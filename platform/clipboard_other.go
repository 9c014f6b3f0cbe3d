//go:build !windows

package platform

import (
	"context"
	"fmt"
	"time"

	"golang.design/x/clipboard"
)

// DesignClipboard implements Clipboard with golang.design/x/clipboard. It
// has no notion of copied file lists.
type DesignClipboard struct{}

// NewClipboard initialises the system clipboard. pollInterval is unused;
// change detection is delegated to clipboard.Watch.
func NewClipboard(pollInterval time.Duration) (Clipboard, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	return &DesignClipboard{}, nil
}

func (c *DesignClipboard) ReadImage() ([]byte, error) {
	return clipboard.Read(clipboard.FmtImage), nil
}

func (c *DesignClipboard) ReadFiles() ([]string, error) {
	return nil, nil
}

func (c *DesignClipboard) ReadText() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (c *DesignClipboard) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (c *DesignClipboard) WriteImage(png []byte) error {
	if changed := clipboard.Write(clipboard.FmtImage, png); changed == nil {
		return fmt.Errorf("failed to write image to clipboard")
	}
	return nil
}

// Watch merges the text and image change streams into one signal channel.
func (c *DesignClipboard) Watch(ctx context.Context) (<-chan struct{}, error) {
	text := clipboard.Watch(ctx, clipboard.FmtText)
	img := clipboard.Watch(ctx, clipboard.FmtImage)

	ch := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-text:
				if !ok {
					return
				}
			case _, ok := <-img:
				if !ok {
					return
				}
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch, nil
}
