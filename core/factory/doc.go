// Package factory builds pluggable components from configuration. A
// component is selected by a type string; its raw settings are decoded into a
// typed struct by the factory registered under that type.
//
// The metrics sinks are built this way:
//
//	sinks := factory.NewRegistry[metrics.Sink]("metrics sink")
//	_ = sinks.Register("influx", func(conf map[string]any) (metrics.Sink, error) {
//	    var c struct {
//	        URL    string `json:"url"`
//	        Bucket string `json:"bucket"`
//	    }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewInfluxSinkWithFallback(c.URL, "", "freight", c.Bucket), nil
//	})
//	sink, err := sinks.Create(factory.ModuleConfig{
//	    Type: "influx",
//	    Conf: map[string]any{"url": "http://influx:8086", "bucket": "quotes"},
//	})
package factory
