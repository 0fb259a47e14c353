// Package config loads the forwarder configuration.
//
// Values are layered: built-in defaults, then the JSON or YAML file, then
// FORWARDER_* environment variables. The forward connection inherits port,
// keepalive, reconnect backoff and (on the same broker) credentials from the
// inbound one, and each connection gets a generated client id when none is
// set. Validate reports every problem at once.
//
// Keep broker passwords in FORWARDER_MQTT_PASSWORD and
// FORWARDER_FORWARD_PASSWORD rather than in the file.
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Forward.Topic)
package config
