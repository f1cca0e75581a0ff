package outbox

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "duration_min": {"type": "integer"},
    "exp_awarded": {"type": "number"},
    "stat_gains": {"type": "object", "additionalProperties": {"type": "number"}},
    "source": {"type": "string"},
    "version": {"type": "string"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "activity_type", "started_at", "duration_min", "exp_awarded", "stat_gains", "source", "version"],
  "additionalProperties": false
}`

const activityReversedSchema = `{
  "type": "object",
  "title": "ActivityReversed",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "leveled_down": {"type": "boolean"},
    "levels_lost": {"type": "integer"},
    "stat_deltas": {"type": "object", "additionalProperties": {"type": "number"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "leveled_down", "levels_lost", "stat_deltas", "occurred_at"],
  "additionalProperties": false
}`

const levelChangedSchema = `{
  "type": "object",
  "title": "LevelChanged",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "previous_level": {"type": "integer"},
    "new_level": {"type": "integer"},
    "levels_changed": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "previous_level", "new_level", "levels_changed", "occurred_at"],
  "additionalProperties": false
}`

const statsDegradedSchema = `{
  "type": "object",
  "title": "StatsDegraded",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "category": {"type": "string"},
    "days_missed": {"type": "integer"},
    "penalty": {"type": "number"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "category", "days_missed", "penalty", "occurred_at"],
  "additionalProperties": false
}`
