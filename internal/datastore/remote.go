package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/assembly/internal/navigator"
	"github.com/vk/assembly/internal/resource"
)

// errorSentinel is the marker a remote server prefixes textual error
// payloads with.
const errorSentinel = "error:"

// remoteTier serializes every operation into one parameter envelope and
// ships it to the server, either over a one-shot HTTP exchange through the
// loader or over a multiplexed socket channel.
type remoteTier struct {
	settings Settings
	loader   *resource.Loader
	socket   *socketChannel
}

func newRemoteTier(settings Settings, loader *resource.Loader) *remoteTier {
	t := &remoteTier{settings: settings, loader: loader}
	if strings.EqualFold(settings.Method, "socket") {
		t.socket = newSocketChannel(settings.URL)
	}
	return t
}

// envelope builds the common part of the parameter envelope, harvesting an
// authentication token from the nearest ancestor instance with the
// configured user role, when that instance is logged in.
func (r *remoteTier) envelope(ctx context.Context) map[string]any {
	env := map[string]any{"store": r.settings.Store}
	if r.settings.DB != "" {
		env["db"] = r.settings.DB
	}

	role := r.settings.User
	if role == "" {
		role = "user"
	}
	if auth := navigator.Closest(ownerFrom(ctx), role); auth != nil {
		if logged, _ := auth.Field("logged").(bool); logged {
			if token, _ := auth.Field("token").(string); token != "" {
				env["token"] = token
			}
		}
	}
	return env
}

// exchange ships an envelope and normalizes the reply. A textual reply is
// an error signal and short-circuits the success path.
func (r *remoteTier) exchange(ctx context.Context, env map[string]any) (any, error) {
	var reply any
	var err error
	if r.socket != nil {
		reply, err = r.socket.call(ctx, env)
	} else {
		reply, err = r.loader.Load(ctx, &resource.Request{
			URL:         r.settings.URL,
			Method:      "POST",
			Params:      env,
			IgnoreCache: true,
			Type:        resource.KindData,
		})
	}
	if err != nil {
		return nil, err
	}
	if text, ok := reply.(string); ok {
		return nil, RemoteError{Message: strings.TrimSpace(strings.TrimPrefix(text, errorSentinel))}
	}
	return reply, nil
}

func (r *remoteTier) get(ctx context.Context, key string) (Record, error) {
	env := r.envelope(ctx)
	env["key"] = key
	reply, err := r.exchange(ctx, env)
	if err != nil || reply == nil {
		return nil, err
	}
	rec, ok := reply.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("remote get %q returned %T, want an object", key, reply)
	}
	return rec, nil
}

func (r *remoteTier) query(ctx context.Context, q Record) ([]Record, error) {
	env := r.envelope(ctx)
	env["key"] = q
	reply, err := r.exchange(ctx, env)
	if err != nil || reply == nil {
		return nil, err
	}
	list, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("remote query returned %T, want a list", reply)
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("remote query returned list item %T, want an object", item)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *remoteTier) count(ctx context.Context, q Record) (int, error) {
	env := r.envelope(ctx)
	if q == nil {
		q = Record{}
	}
	env["count"] = q
	reply, err := r.exchange(ctx, env)
	if err != nil {
		return 0, err
	}
	n, ok := reply.(float64)
	if !ok {
		return 0, fmt.Errorf("remote count returned %T, want a number", reply)
	}
	return int(n), nil
}

func (r *remoteTier) set(ctx context.Context, rec Record) (Record, error) {
	env := r.envelope(ctx)
	env["dataset"] = rec
	reply, err := r.exchange(ctx, env)
	if err != nil {
		return nil, err
	}
	stored, ok := reply.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("remote set returned %T, want an object", reply)
	}
	return stored, nil
}

func (r *remoteTier) del(ctx context.Context, key string) (any, error) {
	env := r.envelope(ctx)
	env["del"] = key
	return r.exchange(ctx, env)
}

func (r *remoteTier) close() error {
	if r.socket != nil {
		r.socket.close()
	}
	return nil
}
