package wamp

import (
	"context"
	"encoding/json"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/sirupsen/logrus"
)

var connectionLost = frame{
	Close:   true,
	Kinds:   []string{ErrURIConnectionFailed},
	Message: "connection lost",
}

func publish(cli *client.Client, topic string, f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return cli.Publish(topic, nil, wamp.List{string(raw)}, nil)
}

// publishStream publishes every item of st, converted by conv, then a close
// frame.
func publishStream[T any](cli *client.Client,
	topic string,
	st *common.Stream[T],
	conv func(T) (interface{}, error),
	logger *logrus.Entry) {

	for {
		v, err := st.Next(context.Background())
		if err != nil {
			if perr := publish(cli, topic, closeFrame(err)); perr != nil {
				logger.WithError(perr).Debug("Publishing close frame")
			}
			return
		}
		item, err := conv(v)
		if err != nil {
			logger.WithError(err).Warn("Skipping item")
			continue
		}
		f, err := itemFrame(item)
		if err != nil {
			logger.WithError(err).Warn("Skipping item")
			continue
		}
		if err := publish(cli, topic, f); err != nil {
			logger.WithError(err).Debug("Publishing stopped")
			st.Cancel()
			return
		}
	}
}

// publishData publishes the messages read from st, then a close frame.
func publishData(cli *client.Client, topic string, st *home.AppMsgStream, logger *logrus.Entry) {
	for {
		msg, err := st.Next(context.Background())
		if err != nil {
			if perr := publish(cli, topic, closeFrame(err)); perr != nil {
				logger.WithError(perr).Debug("Publishing close frame")
			}
			return
		}
		f, err := itemFrame([]byte(msg))
		if err != nil {
			logger.WithError(err).Warn("Skipping message")
			continue
		}
		if err := publish(cli, topic, f); err != nil {
			logger.WithError(err).Debug("Publishing stopped")
			st.Close()
			return
		}
	}
}

// relayFrames subscribes to topic and hands its frames, in order, to handle
// until handle returns false, done is closed or the client disconnects. A
// lost connection is reported to handle as a close frame. Event handlers
// only queue frames, so a slow handle never blocks the client.
func relayFrames(cli *client.Client,
	topic string,
	handle func(context.Context, frame) bool,
	done <-chan struct{},
	logger *logrus.Entry) error {

	q := common.NewQueue[frame]()

	err := cli.Subscribe(topic, func(ev *wamp.Event) {
		f, err := decodeFrame(ev.Arguments)
		if err != nil {
			logger.WithError(err).WithField("topic", topic).Warn("Dropping malformed frame")
			return
		}
		q.Push(f)
	}, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-done:
		case <-cli.Done():
		case <-ctx.Done():
		}
		cancel()
	}()

	go func() {
		defer cancel()
		defer cli.Unsubscribe(topic)
		for {
			f, err := q.Pop(ctx)
			if err != nil {
				handle(ctx, connectionLost)
				return
			}
			if !handle(ctx, f) {
				return
			}
		}
	}()

	return nil
}

// relayData writes the data frames of topic into sink and closes it with the
// topic.
func relayData(cli *client.Client, topic string, sink *home.AppMsgSink, logger *logrus.Entry) error {
	return relayFrames(cli, topic, func(ctx context.Context, f frame) bool {
		if f.Close {
			sink.Close()
			return false
		}
		var data []byte
		if err := json.Unmarshal(f.Payload, &data); err != nil {
			logger.WithError(err).Warn("Dropping malformed message")
			return true
		}
		return sink.Send(ctx, home.AppMessage(data)) == nil
	}, sink.Done(), logger)
}
