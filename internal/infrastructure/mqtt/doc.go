// Package mqtt publishes notesnookd lifecycle and note events over MQTT.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained service status with Last Will and Testament (LWT)
//   - Retained database lifecycle state (open, ready, closed)
//   - Note mutation events
//
// # Topics
//
//	<prefix>/system/status     online / offline (retained, LWT)
//	<prefix>/database/state    database lifecycle (retained)
//	<prefix>/notes/<kind>      note created / deleted
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Payloads never contain note content or key material
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishDatabaseState("ready", cfg.Database.Path, nil)
package mqtt
