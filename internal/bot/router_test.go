package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"
)

// fakeContext implements the few telebot.Context methods the router and
// command handlers touch.
type fakeContext struct {
	telebot.Context

	text string
	sent []interface{}
}

func (f *fakeContext) Text() string { return f.text }

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestRouter_HelpCommand(t *testing.T) {
	router := NewRouter(nil)
	router.RegisterCommand(CommandHelp, newHelpHandler())

	var defaultHit bool
	router.SetDefault(func(c telebot.Context) error {
		defaultHit = true
		return nil
	})

	c := &fakeContext{text: "/help"}
	require.NoError(t, router.Route(c))

	assert.False(t, defaultHit)
	require.Len(t, c.sent, 1)
	text, ok := c.sent[0].(string)
	require.True(t, ok)
	assert.Contains(t, text, "/start")
	assert.Contains(t, text, "/cancel")
}

func TestRouter_UnknownCommandFallsThroughToDefault(t *testing.T) {
	router := NewRouter(nil)
	router.RegisterCommand(CommandHelp, newHelpHandler())

	var got string
	router.SetDefault(func(c telebot.Context) error {
		got = c.Text()
		return nil
	})

	require.NoError(t, router.Route(&fakeContext{text: "/unregistered"}))
	assert.Equal(t, "/unregistered", got)

	require.NoError(t, router.Route(&fakeContext{text: "fix my sink"}))
	assert.Equal(t, "fix my sink", got)
}

func TestRouter_MiddlewaresWrapInOrder(t *testing.T) {
	router := NewRouter(nil)

	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(c telebot.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	router.Use(mw("outer"))
	router.Use(mw("inner"))
	router.SetDefault(func(c telebot.Context) error {
		order = append(order, "handler")
		return nil
	})

	require.NoError(t, router.Route(&fakeContext{text: "hello"}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
