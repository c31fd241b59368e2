package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/viper"
)

const defaultTimeout = 10 * time.Second

// roundTrip publishes one command and waits for the first status reply. The
// subscription is set up before publishing so a fast simulator cannot reply
// into the void.
func roundTrip(command map[string]any) error {
	opts := paho.NewClientOptions().
		AddBroker(viper.GetString("broker")).
		SetClientID(fmt.Sprintf("plantsimctl-%d", time.Now().UnixNano()))
	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultTimeout) {
		return fmt.Errorf("connect timeout for %s", viper.GetString("broker"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer client.Disconnect(250)

	replies := make(chan []byte, 1)
	sub := client.Subscribe(viper.GetString("status-topic"), 1, func(_ paho.Client, m paho.Message) {
		select {
		case replies <- m.Payload():
		default:
		}
	})
	if !sub.WaitTimeout(defaultTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := sub.Error(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return err
	}
	pub := client.Publish(viper.GetString("command-topic"), 1, false, payload)
	if !pub.WaitTimeout(defaultTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := pub.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	timeout := viper.GetDuration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	select {
	case reply := <-replies:
		printReply(reply)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no reply within %s", timeout)
	}
}

func printReply(reply []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, reply, "", "  "); err != nil {
		fmt.Println(string(reply))
		return
	}
	fmt.Println(pretty.String())
}
