package discovery

import (
	"strings"

	"github.com/nlowe/flukso-hass/mqtt"
)

// Device level fields.
const (
	FieldDevice     = "dev"
	FieldOrigin     = "o"
	FieldComponents = "cmps"
)

// Fields shared by every component.
const (
	FieldPlatform          = "p"
	FieldName              = "name"
	FieldUniqueID          = "uniq_id"
	FieldDefaultEntityID   = "def_ent_id"
	FieldIcon              = "ic"
	FieldDeviceClass       = "dev_cla"
	FieldStateTopic        = "stat_t"
	FieldAvailabilityTopic = "avty_t"
	FieldAttributesTopic   = "json_attr_t"
)

// Sensor and binary sensor fields.
const (
	FieldForceUpdate               = "frc_upd"
	FieldExpireAfter               = "exp_aft"
	FieldStateClass                = "stat_cla"
	FieldUnitOfMeasurement         = "unit_of_meas"
	FieldSuggestedDisplayPrecision = "sug_dsp_prc"
	FieldOffDelay                  = "off_dly"
)

// IDSep joins the parts of a calculated device id and replaces characters that may not appear in one.
const IDSep = "__"

// IDSanitizer makes an id safe to use as a topic level. Wildcards are replaced too so an id never widens a
// subscription.
var IDSanitizer = strings.NewReplacer(
	" ", IDSep,
	":", IDSep,
	".", IDSep,
	"!", IDSep,
	"?", IDSep,
	mqtt.TopicSeparator, IDSep,
	mqtt.SingleLevelWildcard, IDSep,
	mqtt.MultiLevelWildcard, IDSep,
)
