package search

const indexMapping = `{
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "user_id": {"type": "keyword"},
      "transaction_type": {"type": "keyword"},
      "product": {"type": "keyword"},
      "status": {"type": "keyword"},
      "currency": {"type": "keyword"},
      "amount": {"type": "float"},
      "created_at": {"type": "date"},
      "search_content": {
        "type": "text",
        "analyzer": "standard",
        "fields": {"keyword": {"type": "keyword"}}
      },
      "metadata": {"type": "object", "enabled": true},
      "_updated_at": {"type": "date"},
      "_enriched": {"type": "boolean"},
      "_enriched_at": {"type": "date"},
      "_event_timestamp": {"type": "date"},
      "_deleted": {"type": "boolean"}
    }
  }
}`
