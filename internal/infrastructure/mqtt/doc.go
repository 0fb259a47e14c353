// Package mqtt wraps paho.mqtt.golang for the forwarder's two broker
// connections.
//
// The inbound connection subscribes to device status topics; the outbound
// connection publishes envelopes to the aggregated topic. Each is a *Client
// with its own client id, and both may point at the same broker:
//
//	devices ─► inbound broker ─► forwarder ─► outbound broker ─► consumers
//
// # Delivery
//
// Handlers run one at a time in broker delivery order (paho ordered mode).
// Subscriptions are tracked and restored after each automatic reconnect.
//
// # Status topic
//
// When the broker section sets status_topic, the connection keeps a retained
// JSON status there: "online" after every connect, "offline" with reason
// "shutdown" on Close, and the will message "offline"/"unexpected_disconnect"
// which the broker publishes if the process dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT.BrokerConfig)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("status/AMT12345678901234", 0,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
