package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fortune402/fortune"
)

// FortuneOutputSchema is the JSON schema of a fortune response. It is
// advertised in the 402 challenge so clients know what they are paying for.
const FortuneOutputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["fortune", "timestamp"],
  "additionalProperties": false,
  "properties": {
    "fortune": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"}
  }
}`

// Teller hands out fortunes.
type Teller interface {
	Tell() (fortune.Fortune, error)
}

// FortuneHandler serves one random fortune per request.
func FortuneHandler(teller Teller, log logrus.FieldLogger, metrics *Metrics) gin.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		f, err := teller.Tell()
		if err != nil {
			log.WithError(err).WithField("request_id", c.GetString(ContextKeyRequestID)).Error("failed to tell fortune")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_, paid := c.Get(ContextKeyPayload)
		metrics.fortuneServed()
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(ContextKeyRequestID),
			"paid":       paid,
		}).Debug("fortune told")
		c.JSON(http.StatusOK, f.Response())
	}
}

// outputSchemaExtension returns the schema in the form carried by the
// challenge's extensions.
func outputSchemaExtension() map[string]interface{} {
	var schema map[string]interface{}
	if err := json.Unmarshal([]byte(FortuneOutputSchema), &schema); err != nil {
		panic(err)
	}
	return map[string]interface{}{
		"outputSchema": schema,
	}
}
