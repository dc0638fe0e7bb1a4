package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docopt/docopt-go"

	"gatherly.app/gather"
)

const GatherCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Gather control.

The default urls are:
    api_url: https://api.gatherly.app
    connect_url: wss://connect.gatherly.app

Usage:
    gatherctl events [--config=<config>] --jwt=<jwt>
    gatherctl watch [--config=<config>] --jwt=<jwt>
        [--duration=<duration>]
    gatherctl create-event [--config=<config>] --jwt=<jwt>
        --title=<title>
        --start=<start>
        --end=<end>
        [--location=<location>]
        [--description=<description>]
    gatherctl rsvp [--config=<config>] --jwt=<jwt>
        --event=<event_id>
        --status=<status>
    gatherctl send-message [--config=<config>] --jwt=<jwt>
        --conversation=<conversation_id>
        [<message>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --config=<config>                Config yaml path.
    --jwt=<jwt>                      Your platform JWT.
    --duration=<duration>            Watch this long then exit [default: 60s].
    --title=<title>
    --start=<start>                  RFC3339 start time.
    --end=<end>                      RFC3339 end time.
    --location=<location>
    --description=<description>
    --event=<event_id>
    --status=<status>                One of invited, going, maybe, declined.
    --conversation=<conversation_id>`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], GatherCtlVersion)
	if err != nil {
		panic(err)
	}

	if events_, _ := opts.Bool("events"); events_ {
		events(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if createEvent_, _ := opts.Bool("create-event"); createEvent_ {
		createEvent(opts)
	} else if rsvp_, _ := opts.Bool("rsvp"); rsvp_ {
		rsvp(opts)
	} else if sendMessage_, _ := opts.Bool("send-message"); sendMessage_ {
		sendMessage(opts)
	}
}

func newClient(opts docopt.Opts) (*gather.Client, error) {
	configPath, _ := opts.String("--config")
	config, err := gather.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	client := gather.NewClient(
		context.Background(),
		config.ApiUrl,
		config.ConnectUrl,
		config.ChannelManagerSettings(),
	)

	jwt, _ := opts.String("--jwt")
	if err := client.Login(jwt); err != nil {
		client.Cancel()
		return nil, err
	}

	return client, nil
}

// print the cached event list
func events(opts docopt.Opts) {
	client, err := newClient(opts)
	if err != nil {
		Err.Printf("%s", err)
		return
	}
	defer client.Cancel()

	for _, event := range client.Store().Events() {
		Out.Printf(
			"%s  %s  %s  host=%s",
			event.EventId,
			event.StartTime.Format(time.RFC3339),
			event.Title,
			event.HostId,
		)
	}
}

// stay subscribed and print a summary line whenever the cache changes
func watch(opts docopt.Opts) {
	client, err := newClient(opts)
	if err != nil {
		Err.Printf("%s", err)
		return
	}
	defer client.Cancel()

	duration := 60 * time.Second
	if durationStr, err := opts.String("--duration"); err == nil {
		if parsed, err := time.ParseDuration(durationStr); err == nil {
			duration = parsed
		}
	}

	store := client.Store()
	views := client.Views()
	endTime := time.After(duration)

	for {
		notify := store.UpdateMonitor().NotifyChannel()

		Out.Printf(
			"events=%d conversations=%d unread_notifications=%d",
			len(store.Events()),
			len(store.ConversationsByRecency()),
			views.UnreadNotificationCount(),
		)

		select {
		case <-notify:
		case <-endTime:
			return
		}
	}
}

func createEvent(opts docopt.Opts) {
	client, err := newClient(opts)
	if err != nil {
		Err.Printf("%s", err)
		return
	}
	defer client.Cancel()

	title, _ := opts.String("--title")
	location, _ := opts.String("--location")
	description, _ := opts.String("--description")

	startStr, _ := opts.String("--start")
	startTime, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		fmt.Printf("Invalid start time (%s).\n", err)
		return
	}
	endStr, _ := opts.String("--end")
	endTime, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		fmt.Printf("Invalid end time (%s).\n", err)
		return
	}

	event, err := client.Mutations().CreateEvent(&gather.CreateEventArgs{
		Title:       title,
		Description: description,
		Location:    location,
		StartTime:   startTime,
		EndTime:     endTime,
	})
	if err != nil {
		Err.Printf("%s", err)
		return
	}

	Out.Printf("%s", event.EventId)
}

func rsvp(opts docopt.Opts) {
	client, err := newClient(opts)
	if err != nil {
		Err.Printf("%s", err)
		return
	}
	defer client.Cancel()

	eventIdStr, _ := opts.String("--event")
	eventId, err := gather.ParseId(eventIdStr)
	if err != nil {
		fmt.Printf("Invalid event_id (%s).\n", err)
		return
	}

	statusStr, _ := opts.String("--status")
	status := gather.RsvpStatus(statusStr)
	switch status {
	case gather.RsvpInvited, gather.RsvpGoing, gather.RsvpMaybe, gather.RsvpDeclined:
	default:
		fmt.Printf("Invalid status (%s).\n", statusStr)
		return
	}

	participant, err := client.Mutations().SetRsvp(&gather.SetRsvpArgs{
		EventId: eventId,
		Status:  status,
	})
	if err != nil {
		Err.Printf("%s", err)
		return
	}

	Out.Printf("%s %s", participant.UserId, participant.Status)
}

func sendMessage(opts docopt.Opts) {
	client, err := newClient(opts)
	if err != nil {
		Err.Printf("%s", err)
		return
	}
	defer client.Cancel()

	conversationIdStr, _ := opts.String("--conversation")
	conversationId, err := gather.ParseId(conversationIdStr)
	if err != nil {
		fmt.Printf("Invalid conversation_id (%s).\n", err)
		return
	}

	body, _ := opts.String("<message>")

	message, err := client.Mutations().SendMessage(&gather.SendMessageArgs{
		ConversationId: conversationId,
		Body:           body,
	})
	if err != nil {
		Err.Printf("%s", err)
		return
	}

	Out.Printf("%s", message.MessageId)
}
